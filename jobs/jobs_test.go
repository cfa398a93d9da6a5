package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/learnexa/learnexa/internal/jobs"
	"github.com/learnexa/learnexa/internal/site"
)

type sms struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *sms) Send(ctx context.Context, from, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, from+"|"+to+"|"+body)
	return nil
}

type provisioner struct {
	calls []string
	err   error
}

func (p *provisioner) Provision(ctx context.Context, userID, fullName, phone string) error {
	p.calls = append(p.calls, userID+"|"+fullName+"|"+phone)
	return p.err
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, nil
}

func task(t *testing.T, typ string, payload any) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(typ, body)
}

func TestOTPDeliverySendsCode(t *testing.T) {
	sender := &sms{}
	job := NewOTPDeliveryJob(sender, "LEARNEXA", nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), task(t, TaskOTPDeliver, OTPDeliveryPayload{
		Phone:     "+201014812328",
		Code:      "482913",
		ExpiresAt: time.Now().Add(time.Minute),
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "LEARNEXA|+201014812328|482913 is your LEARNEXA verification code", sender.sent[0])
}

func TestOTPDeliverySkipsExpiredCodes(t *testing.T) {
	sender := &sms{}
	job := NewOTPDeliveryJob(sender, "LEARNEXA", nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), task(t, TaskOTPDeliver, OTPDeliveryPayload{
		Phone: "+201014812328", Code: "482913", ExpiresAt: time.Now().Add(-time.Second),
	}))
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestOTPDeliveryRetriesGatewayFailure(t *testing.T) {
	sender := &sms{err: errors.New("gateway timeout")}
	job := NewOTPDeliveryJob(sender, "LEARNEXA", nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), task(t, TaskOTPDeliver, OTPDeliveryPayload{Phone: "+201014812328", Code: "482913"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestMalformedPayloadsSkipRetry(t *testing.T) {
	otp := NewOTPDeliveryJob(&sms{}, "LEARNEXA", nil, nil)
	assert.ErrorIs(t, otp.Handle(context.Background(), asynq.NewTask(TaskOTPDeliver, []byte("{"))), asynq.SkipRetry)
	assert.ErrorIs(t, otp.Handle(context.Background(), task(t, TaskOTPDeliver, OTPDeliveryPayload{})), asynq.SkipRetry)

	prov := NewProfileProvisionJob(&provisioner{}, nil, nil)
	assert.ErrorIs(t, prov.Handle(context.Background(), task(t, TaskProfileProvision, ProfileProvisionPayload{})), asynq.SkipRetry)
}

func TestProfileProvision(t *testing.T) {
	p := &provisioner{}
	job := NewProfileProvisionJob(p, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), task(t, TaskProfileProvision, ProfileProvisionPayload{
		UserID: "u1", FullName: "Mona Hassan", Phone: "+201014812328",
	})))
	assert.Equal(t, []string{"u1|Mona Hassan|+201014812328"}, p.calls)

	p.err = errors.New("connection refused")
	assert.Error(t, job.Handle(context.Background(), task(t, TaskProfileProvision, ProfileProvisionPayload{UserID: "u2"})))
}

func TestContactNotifyAcceptsPayload(t *testing.T) {
	job := &ContactNotifyJob{}
	require.NoError(t, job.Handle(context.Background(), task(t, TaskContactNotify, ContactPayload{Name: "Mona", Email: "mona@school.test", Message: "Hi"})))
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskContactNotify, []byte("nope"))), asynq.SkipRetry)
}

func TestClientEnqueuesTasks(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := NewClientWith(rec)
	ctx := context.Background()

	require.NoError(t, client.EnqueueOTPDelivery(ctx, OTPDeliveryPayload{Phone: "+201014812328", Code: "123456", ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, client.EnqueueProfileProvision(ctx, ProfileProvisionPayload{UserID: "u1", FullName: "Mona"}))
	require.NoError(t, client.SubmitContact(ctx, site.Message{Name: "Mona", Email: "mona@school.test", Message: "Hi"}))

	require.Len(t, rec.tasks, 3)
	assert.Equal(t, TaskOTPDeliver, rec.tasks[0].Type())
	assert.Equal(t, TaskProfileProvision, rec.tasks[1].Type())
	assert.Len(t, rec.opts[1], 1)
	assert.Equal(t, TaskContactNotify, rec.tasks[2].Type())

	var contact ContactPayload
	require.NoError(t, json.Unmarshal(rec.tasks[2].Payload(), &contact))
	assert.Equal(t, "mona@school.test", contact.Email)
	assert.NoError(t, client.Close())
}

func TestProvisionTaskIDConflictIsIgnored(t *testing.T) {
	client := NewClientWith(&recordingEnqueuer{err: asynq.ErrTaskIDConflict})
	assert.NoError(t, client.EnqueueProfileProvision(context.Background(), ProfileProvisionPayload{UserID: "u1"}))

	failing := NewClientWith(&recordingEnqueuer{err: errors.New("redis down")})
	assert.Error(t, failing.EnqueueOTPDelivery(context.Background(), OTPDeliveryPayload{Phone: "+201014812328", Code: "123456"}))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}

type fakeInspector struct {
	pending map[string]int
	err     error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, ok := f.pending[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return &asynq.QueueInfo{Queue: queue, Pending: n}, nil
}

func TestHealthEndpoint(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{pending: map[string]int{QueueCritical: 2}}, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"queue":"critical","pending":2},{"queue":"default","pending":0}]`, rr.Body.String())

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{err: errors.New("redis down")}, nil).MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"status":503`)
}
