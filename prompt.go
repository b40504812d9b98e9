package numguess

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
)

//go:embed templates/setup.md
var setupPromptTemplate string

//go:embed templates/guess.md
var guessPromptTemplate string

//go:embed templates/correction.md
var correctionPromptTemplate string

// PromptTemplates holds the text/template sources of the messages sent to the model.
// Setup receives .Low and .High, Guess receives .Guess, .Low and .High, Correction receives .Guess.
type PromptTemplates struct {
	Setup      string `yaml:"setup"`
	Guess      string `yaml:"guess"`
	Correction string `yaml:"correction"`
}

// DefaultPromptTemplates returns the built-in English prompts.
func DefaultPromptTemplates() PromptTemplates {
	return PromptTemplates{
		Setup:      setupPromptTemplate,
		Guess:      guessPromptTemplate,
		Correction: correctionPromptTemplate,
	}
}

// Prompts renders the messages of one game.
type Prompts struct {
	setup      *template.Template
	guess      *template.Template
	correction *template.Template
}

type promptData struct {
	Low   int
	High  int
	Guess int
}

// NewPrompts parses the templates. Empty fields fall back to the defaults.
func NewPrompts(src PromptTemplates) (*Prompts, error) {
	def := DefaultPromptTemplates()
	if src.Setup == "" {
		src.Setup = def.Setup
	}
	if src.Guess == "" {
		src.Guess = def.Guess
	}
	if src.Correction == "" {
		src.Correction = def.Correction
	}

	var p Prompts
	var err error
	if p.setup, err = template.New("setup").Parse(src.Setup); err != nil {
		return nil, goerr.Wrap(err, "failed to parse setup prompt")
	}
	if p.guess, err = template.New("guess").Parse(src.Guess); err != nil {
		return nil, goerr.Wrap(err, "failed to parse guess prompt")
	}
	if p.correction, err = template.New("correction").Parse(src.Correction); err != nil {
		return nil, goerr.Wrap(err, "failed to parse correction prompt")
	}
	return &p, nil
}

var defaultPrompts = func() *Prompts {
	p, err := NewPrompts(DefaultPromptTemplates())
	if err != nil {
		panic(err)
	}
	return p
}()

// DefaultPrompts returns the prompts built from DefaultPromptTemplates.
func DefaultPrompts() *Prompts {
	return defaultPrompts
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt", goerr.V("template", tmpl.Name()))
	}
	return strings.TrimSpace(b.String()), nil
}

// Setup renders the instruction asking the model to privately pick a number in r.
func (p *Prompts) Setup(r Range) (string, error) {
	return render(p.setup, promptData{Low: r.Low, High: r.High})
}

// Guess renders the question for one guess.
func (p *Prompts) Guess(r Range, guess int) (string, error) {
	return render(p.guess, promptData{Low: r.Low, High: r.High, Guess: guess})
}

// Correction renders the reminder sent after a reply that could not be classified.
func (p *Prompts) Correction(r Range, guess int) (string, error) {
	return render(p.correction, promptData{Low: r.Low, High: r.High, Guess: guess})
}
