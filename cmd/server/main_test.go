package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatmood/internal/config"
	"github.com/eldtechnologies/chatmood/internal/models"
)

func sqliteEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatmood.db")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestMigrateThenRecent(t *testing.T) {
	sqliteEnv(t)

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	require.NoError(t, root.Execute())

	cfg := config.Load()
	db, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	msg := models.InboundMessage{MessageID: "42", AuthorName: "Alice", Text: "I love this!"}
	_, err = db.SaveAnalysis(context.Background(), models.NewAnalysis(msg, models.Classification{
		Sentiment: "Positive, upbeat", Justification: "j", Emotion: "joy", Urgency: "low",
	}))
	require.NoError(t, err)
	db.Close()

	var out bytes.Buffer
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"recent", "--limit", "5"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "SENTIMENT")
	assert.Contains(t, out.String(), "Alice")
	assert.Contains(t, out.String(), "Positive")
	assert.NotContains(t, out.String(), "upbeat")
}

func TestClassifyRequiresKey(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("INFERENCE_API_KEY", "")
	t.Setenv("NEUROCHAIN_API_KEY", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"classify", "hello"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INFERENCE_API_KEY")
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), &config.Config{StoreDriver: "mongo"})
	assert.Error(t, err)
}

func TestStoreCommandsRequireDatabaseURL(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("DATABASE_URL", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	for _, args := range [][]string{{"migrate"}, {"recent"}} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(args)

		err := root.Execute()
		require.Error(t, err, args[0])
		assert.Contains(t, err.Error(), "DATABASE_URL", args[0])
	}

	_, err = os.Stat(filepath.Join("data", "chatmood.db"))
	assert.True(t, os.IsNotExist(err), "no fallback database file is created")
}
