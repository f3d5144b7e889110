package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAdminWorkflow(t *testing.T) {
	t.Setenv("INSIGHT_ENABLED", "false")
	t.Setenv("OPENAI_API_KEY", "")
	db := filepath.Join(t.TempDir(), "nested", "admin.db")

	out, err := run(t, "migrate", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "dirty=false")

	out, err = run(t, "user", "add", "--db", db, "--name", "Ada", "--email", "ada@example.com", "--allowance", "12.5")
	require.NoError(t, err)
	assert.Contains(t, out, "created user 1 Ada <ada@example.com> allowance 12.50")

	out, err = run(t, "user", "allowance", "1", "20", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "user 1 allowance 20.00")

	out, err = run(t, "user", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "20.00")

	out, err = run(t, "analytics", "1", "--db", db, "--json")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "Ada", report["name"])
	assert.Equal(t, float64(0), report["days_counted"])
	assert.NotContains(t, report, "ai_insight")

	out, err = run(t, "analytics", "1", "--db", db, "--insight")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada (user 1), all time")
	assert.Contains(t, out, "expected spend  0.00")
}

func TestAdminErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "admin.db")

	_, err := run(t, "user", "allowance", "--db", db, "--", "1", "-5")
	assert.Error(t, err)

	_, err = run(t, "user", "allowance", "abc", "5", "--db", db)
	assert.Error(t, err)

	_, err = run(t, "analytics", "7", "--db", db)
	assert.Error(t, err, "unknown user")

	_, err = run(t, "analytics", "1", "--db", db, "--from", "2025-13-01")
	assert.Error(t, err)

	_, err = run(t, "migrate", "--backend", "memory")
	assert.Error(t, err)

	_, err = run(t, "user", "add", "--db", db, "--name", "Ada")
	assert.Error(t, err, "email is required")
}
