// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/kiterr"
	"github.com/staranto/cachekit/internal/remote"
)

// setup isolates a test from the user's config and cache.
func setup(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("CACHEKIT_CFG", filepath.Join(base, "missing.yaml"))
	t.Setenv("CACHEKIT_ROOT", base)
	t.Setenv("CACHEKIT_APP", "weather")
	t.Setenv("CACHEKIT_NO_STATS", "true")
	return base
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runAppContext(t, context.Background(), args...)
}

func runAppContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	argv := append([]string{"cachekit"}, args...)
	app, err := InitApp(ctx, argv)
	require.NoError(t, err)

	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader("")
	err = app.Run(ctx, argv)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runApp(t, args...)
	require.NoError(t, err, "cachekit %v", args)
	return out
}

func TestInitApp_Commands(t *testing.T) {
	setup(t)
	app, err := InitApp(context.Background(), []string{"cachekit", "ls"})
	require.NoError(t, err)

	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"clear", "completion", "ls", "pull", "push", "run", "show", "stats", "uninstall", "watch"}, names)

	for _, c := range app.Commands {
		for i := 1; i < len(c.Flags); i++ {
			assert.LessOrEqual(t, c.Flags[i-1].Names()[0], c.Flags[i].Names()[0], "%s flags sorted", c.Name)
		}
	}
	assert.Equal(t, "ls", GetMeta(app).Namespace)
}

func TestRun_CachesOutput(t *testing.T) {
	setup(t)
	assert.Equal(t, "first\n", mustRun(t, "run", "forecast", "--", "echo", "first"))
	assert.Equal(t, "first\n", mustRun(t, "run", "forecast", "--", "echo", "second"))
}

func TestRun_JSON(t *testing.T) {
	setup(t)
	out := mustRun(t, "run", "--json", "geo", "--", "echo", `{"lat": 51.5, "lon": -0.1}`)
	assert.JSONEq(t, `{"lat":51.5,"lon":-0.1}`, out)

	assert.Equal(t, "51.5\n", mustRun(t, "show", "geo", "--path", "data.lat"))
}

func TestRun_JSONInvalid(t *testing.T) {
	setup(t)
	_, err := runApp(t, "run", "--json", "geo", "--", "echo", "not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestRun_CommandFails(t *testing.T) {
	setup(t)
	_, err := runApp(t, "run", "broken", "--", "false")
	assert.Error(t, err)

	// The failure left the entry stale, so the next run builds.
	assert.Equal(t, "ok\n", mustRun(t, "run", "broken", "--", "echo", "ok"))
}

func TestRun_Keyed(t *testing.T) {
	setup(t)
	assert.Equal(t, "us\n", mustRun(t, "run", "--key", "us", "region", "--", "sh", "-c", "echo $CACHEKIT_KEY"))
	assert.Equal(t, "eu\n", mustRun(t, "run", "--key", "eu", "region", "--", "sh", "-c", "echo $CACHEKIT_KEY"))
	assert.Equal(t, "us\n", mustRun(t, "run", "--key", "us", "region", "--", "echo", "changed"))

	doc := mustRun(t, "show", "region", "--path", "data")
	assert.JSONEq(t, `{"us":"us","eu":"eu"}`, doc)
}

func TestRun_Usage(t *testing.T) {
	setup(t)
	_, err := runApp(t, "run", "forecast")
	assert.Error(t, err)
}

func TestClear_ThenRebuild(t *testing.T) {
	setup(t)
	mustRun(t, "run", "forecast", "--", "echo", "first")

	assert.Equal(t, "forecast\n", mustRun(t, "clear", "forecast"))
	assert.Equal(t, "", mustRun(t, "clear", "forecast"), "already stale")

	assert.Equal(t, "second\n", mustRun(t, "run", "forecast", "--", "echo", "second"))
}

func TestClear_Selection(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"all", []string{"all"}, "current\nforecast\ngeo\n"},
		{"unscoped", nil, "current\nforecast\ngeo\n"},
		{"by name", []string{"geo"}, "geo\n"},
		{"tag prefix", []string{"--tag", "api:"}, "current\nforecast\n"},
		{"narrow tag", []string{"--tag", "api:v2"}, "current\n"},
		{"unknown", []string{"nowhere"}, ""},
		{"age cutoff", []string{"all", "--days", "1"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t)
			mustRun(t, "run", "--tag", "api:v1", "forecast", "--", "echo", "f")
			mustRun(t, "run", "--tag", "api:v2", "current", "--", "echo", "c")
			mustRun(t, "run", "--tag", "region:us", "geo", "--", "echo", "g")

			out := mustRun(t, append([]string{"clear"}, tt.args...)...)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestClear_BadName(t *testing.T) {
	setup(t)
	_, err := runApp(t, "clear", "../escape")
	assert.ErrorIs(t, err, kiterr.ErrInvalid)

	_, err = runApp(t, "clear", "all", "--days", "-1")
	assert.Error(t, err)
}

func TestClear_Broadcast(t *testing.T) {
	base := setup(t)
	mustRun(t, "run", "forecast", "--", "echo", "f")

	assert.Equal(t, "forecast\n", mustRun(t, "clear", "--broadcast", "forecast"))

	raw, err := os.ReadFile(filepath.Join(base, "weather", "clear.signal"))
	require.NoError(t, err)
	assert.Equal(t, "forecast", gjson.GetBytes(raw, "query.name").String())
}

func TestLs(t *testing.T) {
	setup(t)
	assert.Equal(t, "[]\n", mustRun(t, "ls", "-o", "json"))

	mustRun(t, "run", "--tag", "api:v1", "forecast", "--", "echo", "f")
	mustRun(t, "run", "geo", "--", "echo", "g")
	mustRun(t, "clear", "geo")

	out := mustRun(t, "ls", "-o", "json", "--sort", "name")
	rows := gjson.Parse(out).Array()
	require.Len(t, rows, 2)
	assert.Equal(t, "forecast", rows[0].Get("name").String())
	assert.Equal(t, "fresh", rows[0].Get("state").String())
	assert.Equal(t, `["api:v1"]`, rows[0].Get("tags").Raw)
	assert.Positive(t, rows[0].Get("date").Int())
	assert.Equal(t, "stale", rows[1].Get("state").String())
	assert.False(t, rows[1].Get("date").Exists() && rows[1].Get("date").Type != gjson.Null)

	out = mustRun(t, "ls", "-o", "json", "--filter", "state=stale")
	assert.Equal(t, "geo", gjson.Get(out, "0.name").String())
	assert.Equal(t, int64(1), gjson.Get(out, "#").Int())

	text := mustRun(t, "ls", "--titles")
	assert.Contains(t, text, "NAME")
	assert.Contains(t, text, "api:v1")
	assert.Contains(t, text, "fresh")
}

func TestLs_CorruptDocument(t *testing.T) {
	base := setup(t)
	mustRun(t, "run", "forecast", "--", "echo", "f")
	require.NoError(t, os.WriteFile(filepath.Join(base, "weather", "cache", "bad.json"), []byte("{oops"), 0o600))

	out, err := runApp(t, "ls", "-o", "json")
	assert.ErrorIs(t, err, kiterr.ErrPersistence)
	assert.Equal(t, "forecast", gjson.Get(out, "0.name").String())
}

func TestLs_OutputValidator(t *testing.T) {
	setup(t)
	_, err := runApp(t, "ls", "-o", "xml")
	assert.Error(t, err)
}

func TestShow(t *testing.T) {
	setup(t)
	mustRun(t, "run", "--tag", "api:v1", "forecast", "--", "echo", "sunny")

	out := mustRun(t, "show", "forecast")
	assert.Equal(t, "forecast", gjson.Get(out, "name").String())
	assert.Equal(t, "sunny", gjson.Get(out, "data").String())

	pretty := mustRun(t, "show", "forecast", "--pretty")
	assert.Contains(t, pretty, "\n  ")

	_, err := runApp(t, "show", "forecast", "--path", "data.nothing")
	assert.Error(t, err)

	_, err = runApp(t, "show", "missing")
	assert.ErrorIs(t, err, kiterr.ErrNotFound)

	_, err = runApp(t, "show")
	assert.ErrorIs(t, err, kiterr.ErrInvalid)
}

func TestMissingApp(t *testing.T) {
	setup(t)
	t.Setenv("CACHEKIT_APP", "")

	_, err := runApp(t, "ls")
	assert.ErrorIs(t, err, kiterr.ErrConfiguration)

	assert.Equal(t, "[]\n", mustRun(t, "--app", "other", "ls", "-o", "json"))
}

func TestAppFromConfigFile(t *testing.T) {
	base := setup(t)
	t.Setenv("CACHEKIT_APP", "")
	cfgPath := filepath.Join(base, "cachekit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("app: fromfile\nls:\n  output: json\n"), 0o600))
	t.Setenv("CACHEKIT_CFG", cfgPath)

	mustRun(t, "run", "forecast", "--", "echo", "f")
	_, err := os.Stat(filepath.Join(base, "fromfile", "cache", "forecast.json"))
	assert.NoError(t, err)

	assert.Equal(t, "forecast", gjson.Get(mustRun(t, "ls"), "0.name").String())
}

func TestStats(t *testing.T) {
	setup(t)
	t.Setenv("CACHEKIT_NO_STATS", "false")

	mustRun(t, "run", "forecast", "--", "echo", "f")
	mustRun(t, "run", "forecast", "--", "echo", "f")
	mustRun(t, "run", "forecast", "--", "echo", "f")
	mustRun(t, "clear", "forecast")

	out := mustRun(t, "stats", "-o", "json")
	row := gjson.Get(out, "0")
	assert.Equal(t, "forecast", row.Get("name").String())
	assert.Equal(t, int64(1), row.Get("builds").Int())
	assert.Equal(t, int64(2), row.Get("uses").Int())
	assert.Equal(t, int64(1), row.Get("clears").Int())
	assert.InDelta(t, 2.0/3.0, row.Get("hitrate").Float(), 1e-9)
}

func TestStats_Disabled(t *testing.T) {
	setup(t)
	_, err := runApp(t, "stats")
	assert.Error(t, err)
}

func TestUninstall(t *testing.T) {
	base := setup(t)
	mustRun(t, "run", "forecast", "--", "echo", "f")

	_, err := runApp(t, "uninstall")
	assert.Error(t, err, "no terminal to confirm on")
	assert.DirExists(t, filepath.Join(base, "weather"))

	out := mustRun(t, "uninstall", "--yes")
	assert.Contains(t, out, filepath.Join(base, "weather", "cache", "forecast.json"))
	assert.NoDirExists(t, filepath.Join(base, "weather"))
}

func TestWatch_StopsOnCancel(t *testing.T) {
	setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runAppContext(t, ctx, "watch")
	assert.NoError(t, err)
}

func TestCompletion(t *testing.T) {
	setup(t)
	assert.Contains(t, mustRun(t, "completion", "bash"), "complete -F _cachekit cachekit")
	assert.Contains(t, mustRun(t, "completion", "zsh"), "compdef _cachekit cachekit")

	t.Setenv("SHELL", "/bin/fish")
	_, err := runApp(t, "completion")
	assert.Error(t, err)
}

// memS3 is an in-memory bucket for push and pull.
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memS3) PutObject(_ context.Context, in *s3v2.PutObjectInput, _ ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[awsv2.ToString(in.Key)] = body
	return &s3v2.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(_ context.Context, in *s3v2.GetObjectInput, _ ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &s3v2.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(m.objects[awsv2.ToString(in.Key)]))}, nil
}

func (m *memS3) ListObjectsV2(_ context.Context, in *s3v2.ListObjectsV2Input, _ ...func(*s3v2.Options)) (*s3v2.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3v2.ListObjectsV2Output{}
	for k := range m.objects {
		if strings.HasPrefix(k, awsv2.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: awsv2.String(k)})
		}
	}
	return out, nil
}

func TestPushPull(t *testing.T) {
	bucket := &memS3{objects: map[string][]byte{}}
	orig := newSyncer
	t.Cleanup(func() { newSyncer = orig })
	newSyncer = func(_ context.Context, cmd *cli.Command) (*remote.Syncer, error) {
		store, err := NewStore(cmd)
		if err != nil {
			return nil, err
		}
		return remote.NewSyncer(bucket, store, cmd.String("bucket"), cmd.String("prefix"))
	}

	setup(t)
	mustRun(t, "run", "forecast", "--", "echo", "shared")
	assert.Equal(t, "ci/weather/forecast.json\n", mustRun(t, "push", "--bucket", "team", "--prefix", "ci"))

	base := setup(t)
	out := mustRun(t, "pull", "--bucket", "team", "--prefix", "ci")
	assert.Equal(t, filepath.Join(base, "weather", "cache", "forecast.json")+"\n", out)
	assert.Equal(t, "shared\n", mustRun(t, "run", "forecast", "--", "echo", "local"))

	_, err := runApp(t, "push")
	assert.ErrorIs(t, err, kiterr.ErrConfiguration)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, FlagValidators("text", OutputValidator))
	assert.Error(t, FlagValidators("xml", OutputValidator))
	assert.Error(t, FlagValidators("--oops", JammedFlagValidator))
	assert.NoError(t, FlagValidators(0, NonNegativeValidator))
	assert.Error(t, FlagValidators(-1, NonNegativeValidator))
	assert.NoError(t, FlagValidators("all", NameValidator))
	assert.Error(t, FlagValidators(".hidden", NameValidator))
}
