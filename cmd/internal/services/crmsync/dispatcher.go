// Package crmsync отправляет записанных студентов во внешнюю CRM. Доставка по
// возможности: ошибки логируются и считаются, но на импорт не влияют.
package crmsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

var (
	ErrQueueFull        = errors.New("crm notification queue is full")
	ErrDispatcherClosed = errors.New("crm dispatcher is closed")
)

// Notification - тело уведомления об одном записанном студенте.
type Notification struct {
	StudentID  string  `json:"student_id"`
	AddressID  string  `json:"address_id"`
	IDNumber   string  `json:"id_number"`
	FirstNames string  `json:"names"`
	Surname    string  `json:"surname"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	TenantID   string  `json:"tenant_id"`
	RunID      string  `json:"run_id"`
}

// NewNotification builds the payload from a committed student and its run.
func NewNotification(s importer.CommittedStudent, l importer.LinkageContext) Notification {
	return Notification{
		StudentID:  s.StudentID,
		AddressID:  s.AddressID,
		IDNumber:   s.Student.IDNumber,
		FirstNames: s.Student.FirstNames,
		Surname:    s.Student.Surname,
		Email:      s.Student.Email,
		Phone:      s.Student.Phone,
		TenantID:   l.TenantID,
		RunID:      l.RunID,
	}
}

// Sender доставляет одно уведомление.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type DispatcherOptions struct {
	Workers   int
	QueueSize int
	// Таймаут одного Send.
	Timeout time.Duration
}

// Dispatcher - ограниченная очередь, которую разбирает фиксированный пул воркеров.
type Dispatcher struct {
	sender  Sender
	logger  *logging.Logger
	timeout time.Duration

	queue  chan Notification
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher сразу запускает воркеры.
func NewDispatcher(sender Sender, logger *logging.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:  sender,
		logger:  logger,
		timeout: opts.Timeout,
		queue:   make(chan Notification, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		d.group.Go(d.work)
	}
	return d
}

// Notify ставит студента в очередь и сразу возвращается.
func (d *Dispatcher) Notify(s importer.CommittedStudent, l importer.LinkageContext) {
	n := NewNotification(s, l)
	if err := d.Enqueue(n); err != nil {
		notificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.GetLoggerWithFields(map[string]interface{}{
			"id_number":  n.IDNumber,
			"student_id": n.StudentID,
			"run_id":     n.RunID,
		}).Warnf("crm notification dropped: %v", err)
	}
}

// Enqueue никогда не блокирует.
func (d *Dispatcher) Enqueue(n Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close перестаёт принимать и ждёт, пока очередь опустеет. Если ctx истёк раньше,
// текущие отправки отменяются и возвращается ctx.Err().
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) work() error {
	for n := range d.queue {
		if d.ctx.Err() != nil {
			notificationsTotal.WithLabelValues("dropped").Inc()
			continue
		}
		d.deliver(n)
	}
	return nil
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, n); err != nil {
		notificationsTotal.WithLabelValues("failed").Inc()
		d.logger.GetLoggerWithFields(map[string]interface{}{
			"id_number":  n.IDNumber,
			"student_id": n.StudentID,
			"run_id":     n.RunID,
		}).Warnf("crm sync failed: %v", err)
		return
	}
	notificationsTotal.WithLabelValues("sent").Inc()
}

// NopNotifier выбрасывает уведомления. Используется, когда CRM не настроена.
type NopNotifier struct{}

func (NopNotifier) Notify(importer.CommittedStudent, importer.LinkageContext) {}
