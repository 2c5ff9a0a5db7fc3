package status

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/vcucan"
	"github.com/notnil/vcucan/canbus"
	"github.com/notnil/vcucan/fault"
)

type fixture struct {
	srv    *httptest.Server
	drv    *vcucan.Driver
	vcu    canbus.Bus
	peer   canbus.Bus
	faults *fault.Vector
	pedal  *vcucan.Inbox
	status *vcucan.Outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := canbus.NewLoopbackBus()
	t.Cleanup(func() { _ = bus.Close() })
	vcu := bus.Open()
	peer := bus.Open()

	f := &fixture{vcu: vcu, peer: peer, faults: &fault.Vector{}, pedal: &vcucan.Inbox{}, status: &vcucan.Outbox{}}
	reg := vcucan.NewRegistry()
	require.NoError(t, reg.AddInbox(0x0AA, f.pedal, 500*time.Millisecond))
	f.status.Set([]byte{1, 2})
	require.NoError(t, reg.AddOutbox(0x120, 100*time.Millisecond, f.status))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var mu sync.Mutex
	f.drv = vcucan.NewDriver(reg, vcu, vcucan.WithFaultSink(f.faults), vcucan.WithLocker(&mu), vcucan.WithLogger(logger))
	f.srv = httptest.NewServer(NewRouter(NewHandler(f.drv, f.faults, &mu, logger)))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMailboxes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.peer.Send(canbus.MustFrame(0x0AA, []byte{0xDE, 0xAD})))
	require.NoError(t, f.drv.Tick(100*time.Millisecond))

	var view MailboxesView
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/mailboxes", &view))
	require.Len(t, view.Inbound, 1)
	assert.Equal(t, InboxView{
		ID: "0xAA", Len: 2, Data: "dead", Recent: true,
		AgeMS: 100, TimeoutMS: 500, Received: 1,
	}, view.Inbound[0])
	require.Len(t, view.Outbound, 1)
	assert.Equal(t, OutboxView{ID: "0x120", Len: 2, Data: "0102", PeriodMS: 100, PhaseMS: 0, Sent: 1}, view.Outbound[0])
}

func TestSingleMailbox(t *testing.T) {
	f := newFixture(t)

	var in InboxView
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/mailboxes/inbound/0xAA", &in))
	assert.Equal(t, "0xAA", in.ID)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/mailboxes/inbound/170", &in))

	var out OutboxView
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/mailboxes/outbound/0x120", &out))
	assert.Equal(t, 100.0, out.PeriodMS)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/mailboxes/inbound/0x1", nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/mailboxes/outbound/0x1", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/mailboxes/inbound/pedal", nil))
}

func TestSendOnDemand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/mailboxes/outbound/0x120/send", nil))

	got, ok, err := f.peer.TryReceive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x120), got.ID)
	assert.Equal(t, []byte{1, 2}, got.Payload())
	assert.Equal(t, uint64(1), f.status.Sent)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/mailboxes/outbound/0x121/send", nil))
}

func TestSendFailureReportsFault(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.vcu.Close())

	var body map[string]string
	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodPost, "/mailboxes/outbound/0x120/send", &body))
	assert.Contains(t, body["error"], canbus.ErrClosed.Error())

	var st StatsView
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/stats", &st))
	assert.Equal(t, uint64(1), st.TxErrors)
	assert.Equal(t, "can_bad_tx", st.Faults)
}

func TestStatsAndFaults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.drv.Tick(600*time.Millisecond))
	f.faults.Set(fault.CANBadTx)

	var st StatsView
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/stats", &st))
	assert.Equal(t, uint64(1), st.Ticks)
	assert.Equal(t, uint64(1), st.Timeouts)
	assert.Equal(t, uint64(1), st.Transmitted)
	assert.Equal(t, "can_bad_tx", st.Faults)
	assert.Equal(t, uint32(fault.CANBadTx), st.FaultBits)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/faults/clear", nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/stats", &st))
	assert.Equal(t, "none", st.Faults)
}

func TestClearRecent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.peer.Send(canbus.MustFrame(0x0AA, []byte{1})))
	require.NoError(t, f.drv.Tick(time.Millisecond))
	require.True(t, f.pedal.IsRecent)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/mailboxes/recent/clear", nil))
	assert.False(t, f.pedal.IsRecent)
}
