package control_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/numguess"
	"github.com/m-mizutani/numguess/internal"
	"github.com/m-mizutani/numguess/llm/control"
)

func TestSessionIsConsistent(t *testing.T) {
	ctx := context.Background()
	r := numguess.Range{Low: 1, High: 5}
	client, err := control.New(control.WithRange(r), control.WithSeed(3))
	gt.NoError(t, err)

	for i := 0; i < 20; i++ {
		session, err := client.NewSession(ctx)
		gt.NoError(t, err)

		resp, err := session.GenerateContent(ctx, numguess.Text("Let's play a game!"))
		gt.NoError(t, err)
		gt.Equal(t, resp.Text(), control.ReplyReady)

		correct := 0
		for g := r.Low; g <= r.High; g++ {
			resp, err := session.GenerateContent(ctx, numguess.Text(fmt.Sprintf("Is the number %d?", g)))
			gt.NoError(t, err)
			if numguess.ParseVerdict(resp.Text()) == numguess.VerdictCorrect {
				correct++
			} else {
				gt.Equal(t, numguess.ParseVerdict(resp.Text()), numguess.VerdictIncorrect)
			}
		}
		gt.Equal(t, correct, 1)
		gt.A(t, session.History()).Length(2 * (r.Size() + 1))
		gt.NoError(t, session.Close(ctx))
		gt.NoError(t, session.Close(ctx))

		_, err = session.GenerateContent(ctx, numguess.Text("Is the number 1?"))
		gt.Error(t, err)
	}
}

func TestControlBaselineIsUniform(t *testing.T) {
	client, err := control.New(control.WithSeed(11))
	gt.NoError(t, err)

	exp := numguess.New(client,
		numguess.WithSequencer(numguess.NewSequencer(5)),
		numguess.WithConcurrency(4),
		numguess.WithLogger(internal.TestLogger()),
	)
	result, err := exp.Run(context.Background(), 2000, numguess.DefaultRange())
	gt.NoError(t, err)

	gt.Equal(t, result.TotalAnomalies(), 0)
	gt.Equal(t, result.Matched(), 2000)
	// expected 200 per position
	for idx, c := range result.Histogram() {
		if c < 130 || c > 270 {
			t.Errorf("position %d matched %d times", idx+1, c)
		}
	}
}

func TestInvalidRange(t *testing.T) {
	_, err := control.New(control.WithRange(numguess.Range{Low: 3, High: 3}))
	gt.Error(t, err)
}
