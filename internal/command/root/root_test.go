package root

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainjobs/internal/chain/encoder"
	"chainjobs/internal/command"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand().Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, command.Version, strings.TrimSpace(out))
}

func TestEncode(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "encode", "closeDeposit", "checkCredits")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	sel := encoder.Selector("closeDeposit")
	assert.Equal(t, "closeDeposit()\t"+hexutil.Encode(sel[:]), lines[0])

	_, err = execute(t, "encode", "not valid")
	require.Error(t, err)

	_, err = execute(t, "encode")
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "Geth/v1.10.0"})
	}))
	defer ts.Close()

	cfg := fmt.Sprintf(`{
  "node": {"url": %q},
  "contract": {"owner_account": "0x00000000000000000000000000000000000000aa", "address": "0x00000000000000000000000000000000000000bb"},
  "jobs": {"closing_deposits": {"enabled": true, "function": "closeDeposit", "period": "1m"}}
}`, ts.URL)
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	out, err := execute(t, "check", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "Geth/v1.10.0", strings.TrimSpace(out))

	ts.Close()
	_, err = execute(t, "check", "-c", path)
	require.Error(t, err)
}

func TestBareRootRunsWithConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.yaml")
	out, err := execute(t, "--config", path)
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotContains(t, out, "Usage:")

	_, err = execute(t, "extra")
	require.Error(t, err)
}
