package ledger_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/tapchain/go/clients/solana_rpc_client"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers JSON-RPC calls from canned results keyed by method.
func fakeNode(t *testing.T, results map[string]func(params []json.RawMessage) (result any, rpcErr any)) *ledger.SolanaRPC {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		h, ok := results[req.Method]
		if !ok {
			http.Error(w, "unexpected method "+req.Method, http.StatusServiceUnavailable)
			return
		}
		result, rpcErr := h(req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return ledger.NewSolanaRPC(solana_rpc_client.NewSolanaRPCClient(srv.URL, ""), nil)
}

func accountValue(data []byte) map[string]any {
	return map[string]any{
		"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
		"executable": false,
		"lamports":   1,
		"owner":      programID.String(),
		"rentEpoch":  0,
		"space":      len(data),
	}
}

func signedTx(t *testing.T) *ledger.Transaction {
	t.Helper()
	p, err := ledger.NewProgram(programID)
	require.NoError(t, err)
	s := newSigner(3)
	ix, err := p.SubmitScore(s.addr, 5)
	require.NoError(t, err)
	tx, err := ledger.NewTransaction(s.addr, ledger.Hash{1}, ix)
	require.NoError(t, err)
	_, err = s.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	return tx
}

func TestSolanaRPCReadsAccounts(t *testing.T) {
	p, err := ledger.NewProgram(programID)
	require.NoError(t, err)
	global, _ := p.GlobalAddress()
	record := ledger.PlayerRecord{Wallet: newSigner(1).addr, HighScore: 9}
	data, err := record.MarshalBinary()
	require.NoError(t, err)

	rpc := fakeNode(t, map[string]func([]json.RawMessage) (any, any){
		"getAccountInfo": func(params []json.RawMessage) (any, any) {
			var key string
			_ = json.Unmarshal(params[0], &key)
			if key == global.String() {
				return map[string]any{"context": map[string]any{"slot": 3}, "value": nil}, nil
			}
			return map[string]any{"context": map[string]any{"slot": 3}, "value": accountValue(data)}, nil
		},
		"getProgramAccounts": func(params []json.RawMessage) (any, any) {
			var opts struct {
				Filters []struct {
					Memcmp struct {
						Offset uint64 `json:"offset"`
						Bytes  string `json:"bytes"`
					} `json:"memcmp"`
				} `json:"filters"`
			}
			_ = json.Unmarshal(params[1], &opts)
			require.Len(t, opts.Filters, 1)
			assert.Zero(t, opts.Filters[0].Memcmp.Offset)
			return []map[string]any{{"pubkey": global.String(), "account": accountValue(data)}}, nil
		},
	})

	got, err := rpc.GetAccountInfo(context.Background(), global)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = rpc.GetAccountInfo(context.Background(), record.Wallet)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	accounts, err := rpc.GetProgramAccounts(context.Background(), programID, ledger.PlayerDiscriminator)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, global, accounts[0].Address)
	assert.Equal(t, data, accounts[0].Data)
}

func TestSolanaRPCMapsPreflightFailure(t *testing.T) {
	rpc := fakeNode(t, map[string]func([]json.RawMessage) (any, any){
		"sendTransaction": func([]json.RawMessage) (any, any) {
			return nil, map[string]any{
				"code":    -32002,
				"message": "Transaction simulation failed",
				"data": map[string]any{
					"err":  map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 6000}}},
					"logs": []string{},
				},
			}
		},
	})

	_, err := rpc.SendTransaction(context.Background(), signedTx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidScore)
	var pe *ledger.ProgramError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 0, pe.Instruction)
}

func TestSolanaRPCSendsSignedTransaction(t *testing.T) {
	tx := signedTx(t)
	rpc := fakeNode(t, map[string]func([]json.RawMessage) (any, any){
		"sendTransaction": func(params []json.RawMessage) (any, any) {
			var encoded string
			require.NoError(t, json.Unmarshal(params[0], &encoded))
			raw, err := base64.StdEncoding.DecodeString(encoded)
			require.NoError(t, err)
			decoded, err := ledger.DecodeTransaction(raw)
			require.NoError(t, err)
			assert.NoError(t, decoded.VerifySignatures())
			return decoded.ID().String(), nil
		},
	})

	sig, err := rpc.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), sig)

	tx.Signatures[0] = ledger.Signature{}
	_, err = rpc.SendTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)
}

func TestSolanaRPCSignatureStatus(t *testing.T) {
	rpc := fakeNode(t, map[string]func([]json.RawMessage) (any, any){
		"getSignatureStatuses": func([]json.RawMessage) (any, any) {
			return map[string]any{
				"context": map[string]any{"slot": 8},
				"value": []any{map[string]any{
					"slot":               8,
					"confirmations":      nil,
					"err":                map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 3012}}},
					"confirmationStatus": "confirmed",
				}},
			}, nil
		},
	})

	st, err := rpc.GetSignatureStatus(context.Background(), ledger.Signature{1})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Confirmed)
	assert.Equal(t, uint64(8), st.Slot)
	assert.ErrorIs(t, st.Err, ledger.ErrNotInitialized)
}

func TestSolanaRPCTransportFailure(t *testing.T) {
	rpc := fakeNode(t, nil)

	_, err := rpc.GetLatestBlockhash(context.Background())
	assert.ErrorIs(t, err, ledger.ErrRemoteUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rpc.GetAccountInfo(ctx, programID)
	assert.ErrorIs(t, err, context.Canceled)
}
