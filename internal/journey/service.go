package journey

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/valuejourney/internal/leaderboard"
	"github.com/mind-engage/valuejourney/internal/metrics"
	"github.com/mind-engage/valuejourney/internal/scoring"
	"github.com/mind-engage/valuejourney/internal/shuffle"
	"github.com/mind-engage/valuejourney/internal/wizard"
)

var (
	ErrMissingID  = errors.New("journey id required")
	ErrNoQuestion = errors.New("no question on this step")
)

const anonymousName = "Anonymous Explorer"

var saveNotice = Notice{
	Kind:      NoticeSave,
	Message:   "Your progress could not be saved. It will be saved again with your next step.",
	Retryable: true,
}

// Publisher receives every finalized answer set.
type Publisher interface {
	Publish(ctx context.Context, e leaderboard.Entry) error
}

// Service keeps one live wizard controller per journey and persists every
// transition.
type Service struct {
	m       *wizard.Machine
	store   Store
	pub     Publisher
	log     *zap.Logger
	metrics *metrics.Metrics

	now           func() time.Time
	advanceDelay  time.Duration
	submitTimeout time.Duration
	cacheSize     int

	live     *lru.Cache[string, *session]
	loads    singleflight.Group
	inflight sync.WaitGroup
}

type session struct {
	id   string
	ctrl *wizard.Controller

	mu          sync.Mutex
	displayName string
	notices     []Notice
}

func (s *session) name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.displayName == "" {
		return anonymousName
	}
	return s.displayName
}

func (s *session) rename(name string) {
	s.mu.Lock()
	s.displayName = name
	s.mu.Unlock()
}

func (s *session) notify(n Notice) {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	s.mu.Unlock()
}

func (s *session) drain() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithAdvanceDelay is passed to every controller; 0 advances synchronously.
func WithAdvanceDelay(d time.Duration) Option { return func(s *Service) { s.advanceDelay = d } }

// WithCacheSize bounds the number of live controllers. Non-positive sizes
// keep the default.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

func WithSubmitTimeout(d time.Duration) Option { return func(s *Service) { s.submitTimeout = d } }

func NewService(m *wizard.Machine, store Store, opts ...Option) (*Service, error) {
	s := &Service{
		m:             m,
		store:         store,
		log:           zap.NewNop(),
		now:           time.Now,
		advanceDelay:  wizard.DefaultAdvanceDelay,
		submitTimeout: 10 * time.Second,
		cacheSize:     1024,
	}
	for _, o := range opts {
		o(s)
	}
	live, err := lru.NewWithEvict[string, *session](s.cacheSize, func(_ string, sess *session) {
		sess.ctrl.Close()
		s.metrics.SessionClosed()
	})
	if err != nil {
		return nil, err
	}
	s.live = live
	return s, nil
}

func (s *Service) Machine() *wizard.Machine { return s.m }

// Open returns the journey for id, restoring it from the store unless fresh
// is set or nothing was saved yet. A non-empty displayName replaces the
// stored one.
func (s *Service) Open(ctx context.Context, id, displayName string, fresh bool) (View, error) {
	if id == "" {
		return View{}, ErrMissingID
	}
	var sess *session
	if !fresh {
		var err error
		sess, err = s.session(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return View{}, err
		}
	}
	if sess == nil {
		s.live.Remove(id)
		sess = s.newSession(id, displayName, wizard.New())
		s.live.Add(id, sess)
	} else if displayName != "" {
		sess.rename(displayName)
	}
	if err := s.save(ctx, sess, sess.ctrl.State()); err != nil {
		sess.notify(saveNotice)
	}
	return s.view(sess, nil), nil
}

// Apply dispatches one player event.
func (s *Service) Apply(ctx context.Context, id string, ev Event) (View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return View{}, err
	}
	kind := ""
	if ev.Type == EventAnswer {
		st := sess.ctrl.State()
		kind = string(st.ActiveKey().Kind)
	}
	out, err := ev.dispatch(sess.ctrl)
	if err != nil {
		return View{}, err
	}
	if kind != "" {
		s.metrics.Answer(kind)
	}
	var done *scoring.LevelResult
	if c := out.Completed; c != nil {
		done = &scoring.LevelResult{Level: c.Key.Level, Aspirational: c.Key.Kind == wizard.KindAspirational, Result: c.Result}
	}
	return s.view(sess, done), nil
}

func (s *Service) View(ctx context.Context, id string) (View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(sess, nil), nil
}

// CurrentQuestion returns the question under the cursor, or ErrNoQuestion
// when the player is not answering.
func (s *Service) CurrentQuestion(ctx context.Context, id string) (QuestionView, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return QuestionView{}, err
	}
	st := sess.ctrl.State()
	if !st.Answering() {
		return QuestionView{}, ErrNoQuestion
	}
	q, ok := s.m.CurrentQuestion(&st)
	if !ok {
		return QuestionView{}, ErrNoQuestion
	}
	level := st.ActiveLevel()
	return QuestionView{
		Level:    level,
		Code:     q.Code,
		Category: q.Category,
		Text:     q.TextFor(st.Stakeholder),
		Index:    st.QuestionIndex,
		Count:    s.m.Catalog().QuestionCount(level),
		Options:  shuffle.Options(level, q.Code, st.Stakeholder),
		Selected: st.Draft[q.Code],
	}, nil
}

func (s *Service) Results(ctx context.Context, id string) (Results, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return Results{}, err
	}
	st := sess.ctrl.State()
	res := Results{Step: st.Step, Summary: s.m.Summary(&st)}
	if st.CurrentLevel != "" {
		res.Earlier = s.m.Catalog().Earlier(st.CurrentLevel)
	}
	return res, nil
}

// Forget stops the journey's controller and deletes its saved state.
// Finalized sets already published to the leaderboard are kept there.
func (s *Service) Forget(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	s.live.Remove(id)
	return s.store.Delete(ctx, id)
}

// Close stops every live controller and waits for in-flight submissions.
func (s *Service) Close() {
	s.live.Purge()
	s.inflight.Wait()
}

func (s *Service) session(ctx context.Context, id string) (*session, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	if sess, ok := s.live.Get(id); ok {
		return sess, nil
	}
	v, err, _ := s.loads.Do(id, func() (any, error) {
		if sess, ok := s.live.Get(id); ok {
			return sess, nil
		}
		rec, err := s.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		sess := s.newSession(id, rec.DisplayName, s.m.Restore(rec.StateJSON))
		s.live.Add(id, sess)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func (s *Service) newSession(id, displayName string, st wizard.State) *session {
	sess := &session{id: id, displayName: displayName}
	sess.ctrl = wizard.NewController(s.m, st,
		wizard.WithClock(s.now),
		wizard.WithAdvanceDelay(s.advanceDelay),
		wizard.WithOnChange(func(st wizard.State, out wizard.Outcome) { s.changed(sess, st, out) }),
	)
	s.metrics.SessionOpened()
	return sess
}

func (s *Service) view(sess *session, done *scoring.LevelResult) View {
	v := buildView(sess.id, sess.name(), sess.ctrl.State(), s.m.Catalog(), sess.ctrl.Pending())
	v.Completed = done
	v.Notices = sess.drain()
	return v
}

// changed runs under the controller lock after every transition.
func (s *Service) changed(sess *session, st wizard.State, out wizard.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
	defer cancel()
	if err := s.save(ctx, sess, st); err != nil {
		sess.notify(saveNotice)
	}
	if c := out.Completed; c != nil {
		s.metrics.SetCompleted(string(c.Key.Kind))
		s.publish(sess, st, c)
	}
}

func (s *Service) save(ctx context.Context, sess *session, st wizard.State) error {
	raw, err := s.m.Marshal(st)
	if err == nil {
		sess.mu.Lock()
		name := sess.displayName
		sess.mu.Unlock()
		err = s.store.Save(ctx, Record{ID: sess.id, DisplayName: name, StateJSON: raw, UpdatedAt: s.now()})
	}
	if err != nil {
		s.log.Error("journey save failed", zap.String("journey_id", sess.id), zap.Error(err))
	}
	return err
}

// publish hands the finalized set to the publisher without holding up the
// wizard; a failure surfaces as a notice on the player's next response.
func (s *Service) publish(sess *session, st wizard.State, c *wizard.Completion) {
	if s.pub == nil {
		return
	}
	e := leaderboard.Entry{
		ID:           uuid.NewString(),
		SessionID:    sess.id,
		DisplayName:  sess.name(),
		Stakeholder:  string(st.Stakeholder),
		Level:        c.Key.Level,
		Aspirational: c.Key.Kind == wizard.KindAspirational,
		Score:        c.Result.Percentage,
		Gleams:       c.Result.Gleams,
		Alicorns:     c.Result.Alicorns,
		Timestamp:    s.now(),
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
		defer cancel()
		if err := s.pub.Publish(ctx, e); err != nil {
			sess.notify(Notice{
				Kind:      NoticeSubmission,
				Level:     e.Level,
				Message:   "Your score is saved but could not be shared yet. We will retry shortly.",
				Retryable: true,
			})
			return
		}
		s.log.Debug("score published", zap.String("journey_id", sess.id), zap.String("entry_id", e.ID))
	}()
}
