// Пакет resolution — состояние разрешения роли для одного просмотра страницы.
//
// Жизненный цикл: Pending → Resolved(role) | TimedOut(guest).
// Терминальное состояние неизменно. Ответ IdP и таймер гонятся между собой,
// побеждает первый, кто застал Pending (единственный CAS).
package resolution

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arturkryukov/hostportal/internal/domain/rbac"
)

// Ошибки пути чтения. Все деградируют до роли guest.
var (
	// ErrResolutionTimeout — IdP не ответил за отведённое время.
	ErrResolutionTimeout = errors.New("таймаут разрешения роли")
	// ErrIdentitySourceUnavailable — IdP вернул ошибку.
	ErrIdentitySourceUnavailable = errors.New("Identity Provider недоступен")
	// ErrMalformedClaims — claims не прошли валидацию.
	ErrMalformedClaims = errors.New("некорректные claims")
)

// DefaultTimeout — граница ожидания ответа IdP.
const DefaultTimeout = 2 * time.Second

// Phase — фаза разрешения роли.
type Phase int

const (
	// PhasePending — ответ IdP ещё не получен.
	PhasePending Phase = iota
	// PhaseResolved — роль вычислена из полностью полученных claims.
	PhaseResolved
	// PhaseTimedOut — ожидание не удалось, действует fallback-роль.
	PhaseTimedOut
)

// String возвращает имя фазы для логов и метрик.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseResolved:
		return "resolved"
	case PhaseTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// State — снимок состояния разрешения. Значение, не изменяется после создания.
type State struct {
	Phase Phase
	// Role — вычисленная роль (Resolved) или fallback (TimedOut). Пусто для Pending.
	Role rbac.Role
	// Cause — причина TimedOut.
	Cause error
}

// Pending возвращает начальное состояние.
func Pending() State {
	return State{Phase: PhasePending}
}

// Resolved возвращает терминальное состояние с вычисленной ролью.
func Resolved(role rbac.Role) State {
	return State{Phase: PhaseResolved, Role: role}
}

// TimedOut возвращает терминальное fail-closed состояние.
// Fallback всегда guest, никогда не admin.
func TimedOut(cause error) State {
	if cause == nil {
		cause = ErrResolutionTimeout
	}
	return State{Phase: PhaseTimedOut, Role: rbac.RoleGuest, Cause: cause}
}

// IsTerminal — true для Resolved и TimedOut.
func (s State) IsTerminal() bool {
	return s.Phase != PhasePending
}

// Resolution — состояние разрешения роли одного просмотра страницы.
type Resolution struct {
	// ID — идентификатор просмотра (view).
	ID string
	// Owner — идентификатор сессии, которой принадлежит просмотр.
	Owner string

	state    atomic.Pointer[State]
	pending  *State
	done     chan struct{}
	doneOnce sync.Once
}

// New создаёт Resolution в состоянии Pending.
func New(id, owner string) *Resolution {
	p := Pending()
	r := &Resolution{
		ID:      id,
		Owner:   owner,
		pending: &p,
		done:    make(chan struct{}),
	}
	r.state.Store(r.pending)
	return r
}

// State возвращает текущий снимок.
func (r *Resolution) State() State {
	return *r.state.Load()
}

// Done закрывается при первом терминальном переходе.
func (r *Resolution) Done() <-chan struct{} {
	return r.done
}

// ClaimsReceived переводит Pending → Resolved(rbac.Resolve(claims)).
// На не-Pending состоянии — no-op. Возвращает true, если переход выполнен.
func (r *Resolution) ClaimsReceived(claims rbac.ClaimsBundle) bool {
	next := Resolved(rbac.Resolve(claims))
	return r.transition(&next)
}

// Timeout переводит Pending → TimedOut(guest) с причиной ErrResolutionTimeout.
func (r *Resolution) Timeout() bool {
	next := TimedOut(ErrResolutionTimeout)
	return r.transition(&next)
}

// Fail переводит Pending → TimedOut(guest) с указанной причиной
// (недоступность IdP, некорректные claims).
func (r *Resolution) Fail(cause error) bool {
	next := TimedOut(cause)
	return r.transition(&next)
}

// transition — единственный атомарный check-and-set из исходного Pending.
func (r *Resolution) transition(next *State) bool {
	if !r.state.CompareAndSwap(r.pending, next) {
		return false
	}
	r.doneOnce.Do(func() { close(r.done) })
	return true
}

// Tracker — реестр просмотров страниц с ограниченным временем жизни.
// Брошенные просмотры вытесняются по TTL без побочных эффектов.
type Tracker struct {
	views *expirable.LRU[string, *Resolution]
}

// NewTracker создаёт реестр на maxViews записей с TTL.
func NewTracker(maxViews int, ttl time.Duration) *Tracker {
	return &Tracker{
		views: expirable.NewLRU[string, *Resolution](maxViews, nil, ttl),
	}
}

// Begin создаёт новый Pending-просмотр. Существующий просмотр с тем же ID заменяется.
func (t *Tracker) Begin(viewID, owner string) *Resolution {
	r := New(viewID, owner)
	t.views.Add(viewID, r)
	return r
}

// Get возвращает просмотр по ID.
func (t *Tracker) Get(viewID string) (*Resolution, bool) {
	return t.views.Get(viewID)
}

// OnClaimsReceived применяет claims к просмотру. false — просмотр не найден
// или уже терминален.
func (t *Tracker) OnClaimsReceived(viewID string, claims rbac.ClaimsBundle) bool {
	r, ok := t.views.Get(viewID)
	if !ok {
		return false
	}
	return r.ClaimsReceived(claims)
}

// OnTimeout переводит просмотр в TimedOut(guest), если он ещё Pending.
func (t *Tracker) OnTimeout(viewID string) bool {
	r, ok := t.views.Get(viewID)
	if !ok {
		return false
	}
	return r.Timeout()
}

// Forget удаляет просмотр (уход со страницы).
func (t *Tracker) Forget(viewID string) {
	t.views.Remove(viewID)
}

// Len возвращает количество отслеживаемых просмотров.
func (t *Tracker) Len() int {
	return t.views.Len()
}
