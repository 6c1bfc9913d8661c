package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"notify-broker/internal/domain"
)

type stubLiveness struct {
	acquired   bool
	acquireErr error
	heartbeats int
	standalone int
	released   int
}

func (s *stubLiveness) TryAcquire(context.Context) (bool, error) {
	return s.acquired, s.acquireErr
}
func (s *stubLiveness) Heartbeat(context.Context) error {
	s.heartbeats++
	return nil
}
func (s *stubLiveness) WriteStandalone(context.Context) error {
	s.standalone++
	return nil
}
func (s *stubLiveness) Release(context.Context) error {
	s.released++
	return nil
}

func newTestRunner(store *stubStore, lv Liveness) *Runner {
	service := newTestService(store, &fakeGateway{store: store}, nil)
	return NewRunner(service, lv, store, time.Minute, 10*time.Millisecond, 10*time.Millisecond, zerolog.Nop())
}

// Сценарий D: планировщик выключен — heartbeat есть, запросов к сообщениям нет.
func TestRunOnceSchedulerDisabled(t *testing.T) {
	store := newStubStore()
	store.enabled = false
	lv := &stubLiveness{}
	runner := newTestRunner(store, lv)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if lv.standalone != 1 {
		t.Fatalf("ожидали запись heartbeat, получили %d", lv.standalone)
	}
	if store.dueCalls != 0 {
		t.Fatalf("при выключенном планировщике не должно быть запросов к сообщениям")
	}
	if len(store.statuses) != 0 {
		t.Fatalf("при выключенном планировщике не должно быть записей статусов")
	}
}

func TestRunOnceExecutesPass(t *testing.T) {
	store := newStubStore()
	c1, subs := enabledChannel("C1", 1)
	store.channels["C1"] = c1
	store.subscribers["C1"] = subs
	store.due = []domain.Message{scheduledMessage("m1", "C1")}
	store.messages["m1"] = store.due[0]

	runner := newTestRunner(store, &stubLiveness{})
	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.dueCalls != 1 {
		t.Fatalf("ожидали один запрос назревших, получили %d", store.dueCalls)
	}
	last := runner.LastPass()
	if last.Processed != 1 {
		t.Fatalf("ожидали итог прохода, получили %+v", last)
	}
}

// ctxGateway отдаёт ошибку контекста: проверяем, что отправка
// не получает отменённый контекст.
type ctxGateway struct{}

func (g *ctxGateway) Send(ctx context.Context, _ domain.Channel, _, _ string, _ []string) error {
	return ctx.Err()
}

// Сигнал во время одноразового запуска не обрывает отправки:
// текущее сообщение доводится до конечного статуса.
func TestRunOnceFinishesPassAfterCancel(t *testing.T) {
	store := newStubStore()
	c1, subs := enabledChannel("C1", 1)
	store.channels["C1"] = c1
	store.subscribers["C1"] = subs
	store.due = []domain.Message{scheduledMessage("m1", "C1")}
	store.messages["m1"] = store.due[0]

	service := newTestService(store, &ctxGateway{}, nil)
	runner := NewRunner(service, &stubLiveness{}, store, time.Minute, 10*time.Millisecond, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runner.RunOnce(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := store.messages["m1"].Status; got != domain.StatusSent {
		t.Fatalf("сообщение должно дойти до sent, получили %s", got)
	}
}

// Недоступность хранилища на старте — единственный повод для ошибки RunOnce.
func TestRunOnceSurfacesStorageFailure(t *testing.T) {
	store := newStubStore()
	store.dueErr = errors.New("нет подключения")
	runner := newTestRunner(store, &stubLiveness{})

	if err := runner.RunOnce(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку при недоступном хранилище")
	}
}

// Сценарий E, половина цикла: при живом владельце Run тихо завершается
// и не делает ни одного запроса к сообщениям.
func TestRunExitsOnContention(t *testing.T) {
	store := newStubStore()
	lv := &stubLiveness{acquired: false}
	runner := newTestRunner(store, lv)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("конкуренция за блокировку — не ошибка: %v", err)
	}
	if store.dueCalls != 0 {
		t.Fatalf("без блокировки не должно быть запросов к сообщениям")
	}
	if lv.released != 0 {
		t.Fatalf("чужая блокировка не должна сниматься")
	}
}

func TestRunReleasesLockOnShutdown(t *testing.T) {
	store := newStubStore()
	lv := &stubLiveness{acquired: true}
	runner := newTestRunner(store, lv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("цикл не завершился по сигналу")
	}
	if lv.released != 1 {
		t.Fatalf("блокировка должна сниматься после выхода из цикла")
	}
	if lv.heartbeats == 0 {
		t.Fatalf("ожидали хотя бы один heartbeat")
	}
	if store.dueCalls == 0 {
		t.Fatalf("ожидали хотя бы один проход")
	}
}

func TestRunConsumerProcessesJob(t *testing.T) {
	store := newStubStore()
	c1, subs := enabledChannel("C1", 1)
	store.channels["C1"] = c1
	store.subscribers["C1"] = subs
	msg := scheduledMessage("m1", "C1")
	msg.Status = domain.StatusPending
	store.messages["m1"] = msg

	runner := newTestRunner(store, &stubLiveness{})

	queue := &stubQueue{jobs: []domain.DispatchJob{{ID: "j1", MessageID: "m1"}}}
	ctx, cancel := context.WithCancel(context.Background())
	queue.cancel = cancel
	runner.RunConsumer(ctx, queue)

	if len(queue.acks) != 1 || !queue.acks[0] {
		t.Fatalf("задача должна быть подтверждена, получили %v", queue.acks)
	}
	if got := store.messages["m1"].Status; got != domain.StatusSent {
		t.Fatalf("ожидали sent, получили %s", got)
	}
}

type stubQueue struct {
	jobs   []domain.DispatchJob
	acks   []bool
	cancel context.CancelFunc
}

func (q *stubQueue) Enqueue(context.Context, domain.DispatchJob) error { return nil }

func (q *stubQueue) Receive(ctx context.Context) (domain.DispatchJob, domain.DispatchAckFunc, error) {
	if len(q.jobs) == 0 {
		// Очередь опустела: завершаем потребителя.
		q.cancel()
		return domain.DispatchJob{}, nil, ctx.Err()
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, func(success bool) error {
		q.acks = append(q.acks, success)
		return nil
	}, nil
}
