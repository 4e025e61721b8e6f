package handlers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/mocks"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// Two paragraphs that do not fit one 20-byte segment.
const twoParagraphs = "Kai walks into the bar.\n\nMara pours a drink."

func summaryOnly() *mocks.TextGenerator {
	return &mocks.TextGenerator{Responses: map[string]string{
		string(services.SubtaskSummary): `{"segment_summary":"Kai had a drink."}`,
	}}
}

func TestIngestHandler_HandleWithOptions(t *testing.T) {
	tests := []struct {
		name       string
		opts       IngestOptions
		wantCycles []int
		wantGame   int
	}{
		{name: "shared cycle", opts: IngestOptions{}, wantCycles: []int{1, 1}, wantGame: 1},
		{name: "advance", opts: IngestOptions{Advance: true}, wantCycles: []int{1, 2}, wantGame: 2},
		{name: "explicit start", opts: IngestOptions{Cycle: 4, Advance: true}, wantCycles: []int{4, 5}, wantGame: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t, summaryOnly())
			env.seedWorld(t)
			h := NewIngestHandler(env.pipeline, env.reader, 20, nil)
			path := writeFile(t, "chapter.txt", twoParagraphs)

			var progress []int
			res, err := h.HandleWithOptions(t.Context(), env.game.ID, path, tt.opts, func(i int) {
				progress = append(progress, i)
			})
			require.NoError(t, err)
			require.NoError(t, res.Err())

			assert.Equal(t, []int{0, 1}, progress)
			require.Len(t, res.Segments, 2)
			for i, seg := range res.Segments {
				assert.Equal(t, i, seg.Index)
				assert.Equal(t, tt.wantCycles[i], seg.Cycle)
				require.NotNil(t, seg.Result.Applied)
			}
			assert.Equal(t, tt.wantCycles[1], res.LastCycle)
			assert.Empty(t, res.Failed())
			assert.Equal(t, 2, env.llm.CallCount(string(services.SubtaskSummary)))

			game, err := env.reader.Game(t.Context(), env.game.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantGame, game.CurrentCycle)
		})
	}
}

func TestIngestHandler_DryRun(t *testing.T) {
	env := setupEnv(t, summaryOnly())
	env.seedWorld(t)
	h := NewIngestHandler(env.pipeline, env.reader, 20, nil)
	path := writeFile(t, "chapter.txt", twoParagraphs)

	res, err := h.HandleWithOptions(t.Context(), env.game.ID, path, IngestOptions{Advance: true, DryRun: true}, nil)
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	for _, seg := range res.Segments {
		require.NotNil(t, seg.Result)
		assert.Nil(t, seg.Result.Applied)
		assert.Equal(t, "Kai had a drink.", seg.Result.Payload.SegmentSummary)
	}

	game, err := env.reader.Game(t.Context(), env.game.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, game.CurrentCycle)
}

func TestIngestHandler_Failures(t *testing.T) {
	t.Run("every segment failed", func(t *testing.T) {
		llm := &mocks.TextGenerator{Errors: map[string]error{
			string(services.SubtaskSummary): errors.New("rate limited"),
		}}
		env := setupEnv(t, llm)
		h := NewIngestHandler(env.pipeline, env.reader, 20, nil)
		path := writeFile(t, "chapter.txt", twoParagraphs)

		res, err := h.HandleWithOptions(t.Context(), env.game.ID, path, IngestOptions{Advance: true}, nil)
		require.NoError(t, err)
		assert.Len(t, res.Failed(), 2)
		assert.Equal(t, 2, res.LastCycle)
		assert.ErrorIs(t, res.Err(), ErrNothingIngested)
	})

	t.Run("empty file", func(t *testing.T) {
		env := setupEnv(t, summaryOnly())
		h := NewIngestHandler(env.pipeline, env.reader, 20, nil)
		_, err := h.HandleWithOptions(t.Context(), env.game.ID, writeFile(t, "empty.txt", "\n\n  \n"), IngestOptions{}, nil)
		assert.ErrorContains(t, err, "no narrative text")
	})

	t.Run("directory instead of file", func(t *testing.T) {
		env := setupEnv(t, summaryOnly())
		h := NewIngestHandler(env.pipeline, env.reader, 20, nil)
		_, err := h.HandleWithOptions(t.Context(), env.game.ID, t.TempDir(), IngestOptions{}, nil)
		assert.ErrorContains(t, err, "is a directory")
	})

	t.Run("missing file", func(t *testing.T) {
		env := setupEnv(t, summaryOnly())
		h := NewIngestHandler(env.pipeline, env.reader, 20, nil)
		_, err := h.HandleWithOptions(t.Context(), env.game.ID, "/nonexistent/chapter.txt", IngestOptions{}, nil)
		assert.Error(t, err)
	})
}

func TestIngestHandler_HandleDirectory(t *testing.T) {
	env := setupEnv(t, summaryOnly())
	env.seedWorld(t)
	h := NewIngestHandler(env.pipeline, env.reader, 20, nil)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01.txt"), []byte(twoParagraphs), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02.txt"), []byte("Kai leaves."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "drafts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drafts", "03.txt"), []byte("Draft."), 0o644))

	t.Run("continues the cycle across files", func(t *testing.T) {
		var files []string
		res, err := h.HandleDirectory(t.Context(), env.game.ID, dir, "*.txt", false, IngestOptions{Advance: true}, func(f string) {
			files = append(files, filepath.Base(f))
		})
		require.NoError(t, err)
		assert.Empty(t, res.Errors)
		assert.Equal(t, []string{"01.txt", "02.txt"}, files)
		assert.Equal(t, 2, res.TotalFiles)
		assert.Equal(t, 3, res.TotalSegments)
		assert.Equal(t, 3, res.FileResults[1].LastCycle)
	})

	t.Run("recursive", func(t *testing.T) {
		res, err := h.HandleDirectory(t.Context(), env.game.ID, dir, "*.txt", true, IngestOptions{DryRun: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, res.TotalFiles)
	})

	t.Run("no matches", func(t *testing.T) {
		_, err := h.HandleDirectory(t.Context(), env.game.ID, dir, "*.log", false, IngestOptions{}, nil)
		assert.ErrorContains(t, err, "no files matching")
	})

	t.Run("bad pattern", func(t *testing.T) {
		_, err := h.HandleDirectory(t.Context(), env.game.ID, dir, "[", false, IngestOptions{}, nil)
		assert.ErrorContains(t, err, "finding files")
	})

	t.Run("not a directory", func(t *testing.T) {
		_, err := h.HandleDirectory(t.Context(), env.game.ID, filepath.Join(dir, "01.txt"), "*.txt", false, IngestOptions{}, nil)
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestIsGlobPattern(t *testing.T) {
	assert.True(t, IsGlobPattern("chapters/*.txt"))
	assert.True(t, IsGlobPattern("ch?.txt"))
	assert.False(t, IsGlobPattern("chapters/01.txt"))
	assert.True(t, IsDirectory(t.TempDir()))
	assert.False(t, IsDirectory("/nonexistent"))
}
