package memory

import (
	"context"
	"sync"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"
)

type statKey struct {
	userID  int64
	groupID int64
	day     string
}

type participantKey struct {
	eventID uint
	userID  int64
}

// state полное содержимое хранилища; копируется перед каждой транзакцией
type state struct {
	users        map[int64]models.User
	groups       map[int64]models.Group
	settings     *models.SystemSettings
	dailyStats   map[statKey]models.DailyStat
	balanceLogs  []models.BalanceLog
	events       map[uint]models.Event
	participants map[participantKey]models.EventParticipant
	products     map[uint]models.MarketProduct
	orders       map[uint]models.MarketOrder
	commands     map[uint]models.CustomCommand
	profiles     map[uint]models.ScheduledProfile
	seq          uint
}

func newState() *state {
	return &state{
		users:        make(map[int64]models.User),
		groups:       make(map[int64]models.Group),
		dailyStats:   make(map[statKey]models.DailyStat),
		events:       make(map[uint]models.Event),
		participants: make(map[participantKey]models.EventParticipant),
		products:     make(map[uint]models.MarketProduct),
		orders:       make(map[uint]models.MarketOrder),
		commands:     make(map[uint]models.CustomCommand),
		profiles:     make(map[uint]models.ScheduledProfile),
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *state) clone() *state {
	c := &state{
		users:        cloneMap(s.users),
		groups:       cloneMap(s.groups),
		dailyStats:   cloneMap(s.dailyStats),
		balanceLogs:  append([]models.BalanceLog(nil), s.balanceLogs...),
		events:       cloneMap(s.events),
		participants: cloneMap(s.participants),
		products:     cloneMap(s.products),
		orders:       cloneMap(s.orders),
		commands:     cloneMap(s.commands),
		profiles:     cloneMap(s.profiles),
		seq:          s.seq,
	}
	if s.settings != nil {
		settings := *s.settings
		c.settings = &settings
	}
	return c
}

func (s *state) nextID() uint {
	s.seq++
	return s.seq
}

// Store хранилище в памяти процесса. Транзакции выполняются строго по одной,
// при ошибке состояние откатывается к снимку.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

// Option настраивает Store
type Option func(*Store)

// WithClock подменяет часы для меток времени
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore создает пустое хранилище
func NewStore(opts ...Option) *Store {
	s := &Store{data: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

// InTx выполняет fn атомарно
func (s *Store) InTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return apperrors.FromStore(err, operation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if r := recover(); r != nil {
			s.data = snapshot
			panic(r)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(&tx{st: s.data, now: s.now})
}

// ReadTx выполняет fn на согласованном снимке; изменения внутри отбрасываются
func (s *Store) ReadTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromStore(err, operation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&tx{st: s.data.clone(), now: s.now})
}
