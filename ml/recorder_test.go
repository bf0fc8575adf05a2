package ml

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryWriteCSV(t *testing.T) {
	x, y := twoClusters(2)
	history := &History{}

	_, err := fixedTwoLayer().Train(x, y, TrainConfig{
		Epochs:    1,
		BatchSize: 4,
		Debug:     true,
		Recorder:  history,
		Output:    io.Discard,
	})
	require.NoError(t, err)
	require.Len(t, history.Steps, 1)

	var buf bytes.Buffer
	require.NoError(t, history.WriteCSV(&buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "epoch 1 batch 1 layer 1 weights_t\n0.3,-0.2,0.1\n-0.1,0.4,0.2\n"), out)
	for _, title := range []string{
		"epoch 1 batch 1 layer 2 biases\n0,0\n",
		"epoch 1 batch 1 layer 1 output\n",
		"epoch 1 batch 1 softmax\n",
		"epoch 1 batch 1 d_score\n",
		"epoch 1 batch 1 layer 2 d_w\n",
		"epoch 1 batch 1 layer 1 d_b\n",
		"epoch 1 batch 1 loss\n",
	} {
		assert.Contains(t, out, title)
	}

	// Four samples give four softmax rows of two columns.
	softmax := out[strings.Index(out, "softmax\n")+len("softmax\n"):]
	rows := strings.SplitN(softmax, "\n", 5)[:4]
	for _, row := range rows {
		assert.Len(t, strings.Split(row, ","), 2)
	}
}

func TestHistoryWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&History{}).WriteCSV(&buf))
	assert.Empty(t, buf.String())
}
