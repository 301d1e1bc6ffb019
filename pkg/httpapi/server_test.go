package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethan/mediabridge/pkg/httpapi"
	"github.com/ethan/mediabridge/pkg/localendpoint"
	"github.com/ethan/mediabridge/pkg/supervisor"
	"github.com/ethan/mediabridge/pkg/workerapi"
	"github.com/ethan/mediabridge/pkg/workerapi/fakeworker"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	newWorker := func(string) workerapi.Worker {
		w := fakeworker.New()
		w.AutoComplete = true
		return w
	}
	newCb := func(string) localendpoint.Callbacks { return localendpoint.Callbacks{} }

	cfg := supervisor.DefaultConfig()
	cfg.StaggerInterval = 5 * time.Millisecond

	sup := supervisor.New(cfg, newWorker, newCb, nil, nil)
	sup.Start()
	t.Cleanup(func() { _ = sup.Stop() })

	require.NoError(t, sup.StartBridges(t.Context(), []string{"cam-1", "cam-2"}))
	require.Eventually(t, func() bool {
		return len(sup.Snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	return sup
}

func TestHandleListBridgesReturnsEverySupervisedBridge(t *testing.T) {
	sup := newTestSupervisor(t)
	srv := httpapi.NewServer(sup, nil)

	req := httptest.NewRequest(http.MethodGet, "/bridges", nil)
	rec := httptest.NewRecorder()
	srv.ServeBridges(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []httpapi.BridgeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
}

func TestHandleQueueStatusRejectsNonGet(t *testing.T) {
	sup := newTestSupervisor(t)
	srv := httpapi.NewServer(sup, nil)

	req := httptest.NewRequest(http.MethodPost, "/bridges/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeQueueStatus(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
