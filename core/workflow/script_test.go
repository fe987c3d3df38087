package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScript(t *testing.T) {
	w := loadAlign(t)
	g := goldenTester(t)

	for _, task := range []string{"trim", "map", "stats"} {
		t.Run(task, func(t *testing.T) {
			script, err := Script(w, w.Task(task))
			require.NoError(t, err)
			g.Assert(t, task, []byte(script))
		})
	}
}
