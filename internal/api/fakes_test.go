package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
)

// memDB backs every store interface with maps.
type memDB struct {
	mu      sync.Mutex
	apps    map[string]*model.Application
	docs    map[string]*repository.Document
	orders  map[string]model.PaymentOrder
	order   []string
	windows map[string]model.AdmissionWindow
	serial  int
}

func newMemDB() *memDB {
	return &memDB{
		apps:    make(map[string]*model.Application),
		docs:    make(map[string]*repository.Document),
		orders:  make(map[string]model.PaymentOrder),
		windows: make(map[string]model.AdmissionWindow),
	}
}

func copyApp(a *model.Application) *model.Application {
	cp := *a
	cp.Fields = make(map[model.Stage]model.Fields, len(a.Fields))
	for k, v := range a.Fields {
		cp.Fields[k] = v.Clone()
	}
	return &cp
}

type memApps struct{ *memDB }

func (m memApps) Get(_ context.Context, id string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyApp(app), nil
}

func (m memApps) ForApplicant(_ context.Context, applicantID, year string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.apps {
		if app.ApplicantID == applicantID && app.AcademicYear == year {
			return copyApp(app), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memApps) SaveStage(_ context.Context, s repository.StageSave) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var app *model.Application
	if s.ApplicationID != "" {
		app = m.apps[s.ApplicationID]
		if app == nil {
			return nil, repository.ErrNotFound
		}
	} else {
		for _, a := range m.apps {
			if a.ApplicantID == s.ApplicantID && a.AcademicYear == s.AcademicYear {
				app = a
			}
		}
	}
	switch {
	case app == nil && s.Stage != model.StageBasicInfo:
		return nil, repository.ErrStageSkipped
	case app == nil:
		m.serial++
		app = &model.Application{
			ID:           fmt.Sprintf("PU/ODL/DIRECT/2025/%06d", m.serial),
			ApplicantID:  s.ApplicantID,
			AcademicYear: s.AcademicYear,
			Stage:        model.StageBasicInfo,
			Status:       model.StatusInProgress,
			Fields:       map[model.Stage]model.Fields{},
			Referral:     s.Referral,
		}
		m.apps[app.ID] = app
	case app.Status == model.StatusSubmitted:
		return nil, repository.ErrSubmitted
	}
	app.Fields[s.Stage] = s.Fields.Clone()
	if next, ok := s.Stage.Next(); ok {
		app.Stage = model.Later(app.Stage, next)
	}
	return copyApp(app), nil
}

type memDocs struct{ *memDB }

func (m memDocs) Put(_ context.Context, doc *repository.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := doc.ApplicationID + "|" + string(doc.Role)
	var replaced string
	if prev, ok := m.docs[key]; ok {
		replaced = prev.ObjectKey
	}
	cp := *doc
	m.docs[key] = &cp
	return replaced, nil
}

func (m memDocs) Get(_ context.Context, appID string, role model.Role) (*repository.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[appID+"|"+string(role)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m memDocs) Roles(_ context.Context, appID string) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []model.Role
	for _, doc := range m.docs {
		if doc.ApplicationID == appID {
			roles = append(roles, doc.Role)
		}
	}
	return roles, nil
}

type memOrders struct{ *memDB }

func (m memOrders) Latest(_ context.Context, appID string) (model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		if o := m.orders[m.order[i]]; o.ApplicationID == appID {
			return o, nil
		}
	}
	return model.PaymentOrder{}, repository.ErrNotFound
}

func (m memOrders) Pending(_ context.Context, appID string, amount int64, currency, newID string) (model.PaymentOrder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[appID]
	if !ok {
		return model.PaymentOrder{}, false, repository.ErrNotFound
	}
	if app.Status == model.StatusSubmitted {
		return model.PaymentOrder{}, false, repository.ErrSubmitted
	}
	for _, o := range m.orders {
		if o.ApplicationID == appID && o.Status == model.OrderCreated {
			return o, false, nil
		}
	}
	o := model.PaymentOrder{OrderID: newID, ApplicationID: appID, Amount: amount, Currency: currency, Status: model.OrderCreated, CreatedAt: time.Now()}
	m.orders[newID] = o
	m.order = append(m.order, newID)
	return o, true, nil
}

func (m memOrders) SetCheckoutURL(_ context.Context, orderID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[orderID]
	o.CheckoutURL = url
	m.orders[orderID] = o
	return nil
}

func (m memOrders) Resolve(_ context.Context, orderID string, decide func(model.PaymentOrder) (model.PaymentOrder, error)) (model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return model.PaymentOrder{}, repository.ErrNotFound
	}
	next, err := decide(o)
	if err != nil {
		return o, err
	}
	m.orders[orderID] = next
	if next.Status == model.OrderSuccess {
		if app := m.apps[o.ApplicationID]; app != nil {
			app.Status = model.StatusSubmitted
			app.Stage = model.StageSubmitted
		}
	}
	return next, nil
}

type memWindows struct{ *memDB }

func (m memWindows) ForYear(_ context.Context, year string) (model.AdmissionWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.windows {
		if year == "" || w.AcademicYear == year {
			return w, nil
		}
	}
	return model.AdmissionWindow{}, repository.ErrNotFound
}

func (m memWindows) Get(_ context.Context, code string) (model.AdmissionWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[code]
	if !ok {
		return model.AdmissionWindow{}, repository.ErrNotFound
	}
	return w, nil
}

func (m memWindows) Save(_ context.Context, w model.AdmissionWindow) (model.AdmissionWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[w.AdmissionCode] = w
	return w, nil
}

func (m memWindows) SetOpen(_ context.Context, code string, open bool) (model.AdmissionWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[code]
	if !ok {
		return model.AdmissionWindow{}, repository.ErrNotFound
	}
	w.IsOpen = open
	m.windows[code] = w
	return w, nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func (m *memObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.removed = append(m.removed, key)
	return nil
}

func (m *memObjects) Presign(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://minio.test/" + key, nil
}

type fakeCheckout struct{}

func (fakeCheckout) Checkout(_ context.Context, o model.PaymentOrder, _ payment.Prefill) (string, string, error) {
	return "tok", "https://pay.test/" + o.OrderID, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

var _ Notifier = (*gateway.Midtrans)(nil)
