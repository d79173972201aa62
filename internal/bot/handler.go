package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/interview"
	"github.com/spigell/hr-interview-bot/internal/logger"
	"github.com/spigell/hr-interview-bot/internal/metrics"
)

const (
	cmdStart     = "/start"
	cmdVacancies = "/vacancies"

	// MinResumeChars is the shortest text message accepted as a resume.
	MinResumeChars = 200

	seenUpdates = 1024
)

// Handler runs the candidate dialogue. Updates are processed one at a time.
type Handler struct {
	store       Store
	catalog     Catalog
	interviewer Interviewer
	evaluator   Evaluator
	messenger   Messenger
	resumes     *ResumeExtractor
	validate    *validator.Validate
	logger      *zap.Logger

	mu   sync.Mutex
	seen *recentIDs
}

type Deps struct {
	Store       Store
	Catalog     Catalog
	Interviewer Interviewer
	Evaluator   Evaluator
	Messenger   Messenger
	Resumes     *ResumeExtractor
	Logger      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Resumes == nil {
		d.Resumes = NewResumeExtractor()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{
		store:       d.Store,
		catalog:     d.Catalog,
		interviewer: d.Interviewer,
		evaluator:   d.Evaluator,
		messenger:   d.Messenger,
		resumes:     d.Resumes,
		validate:    validator.New(),
		logger:      d.Logger,
		seen:        newRecentIDs(seenUpdates),
	}
}

// HandleUpdate processes one inbound message. Hard failures are reported to
// the candidate with an apology and returned to the caller.
func (h *Handler) HandleUpdate(ctx context.Context, u Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if u.ID != 0 && !h.seen.add(u.ID) {
		h.logger.Debug("skipping redelivered update", zap.Int("update_id", u.ID))
		return nil
	}

	log := logger.WithSession(h.logger, 0, u.ChatID)

	err := h.dispatch(ctx, log, u)
	if err == nil {
		return nil
	}

	log.Error("failed to handle update", zap.Error(err))
	if sendErr := h.send(ctx, u.ChatID, Reply{Text: msgSorry}); sendErr != nil {
		log.Error("failed to send apology", zap.Error(sendErr))
	}
	return err
}

func (h *Handler) dispatch(ctx context.Context, log *zap.Logger, u Update) error {
	cand, err := h.store.CandidateByChat(ctx, u.ChatID)
	if errors.Is(err, hr.ErrNotFound) {
		cand, err = h.store.CreateCandidate(ctx, u.ChatID, u.Name)
		if err != nil {
			return fmt.Errorf("create candidate: %w", err)
		}
		log.Info("new candidate registered", zap.Int64("candidate_id", cand.ID))
		if strings.TrimSpace(u.Text) != cmdStart {
			return h.send(ctx, cand.ChatID, Reply{Text: msgWelcome})
		}
	} else if err != nil {
		return fmt.Errorf("load candidate: %w", err)
	}

	metrics.UpdatesTotal.WithLabelValues(string(cand.State)).Inc()
	log.Debug("dispatching update", zap.String("state", string(cand.State)))

	switch strings.TrimSpace(u.Text) {
	case cmdStart:
		return h.restart(ctx, cand)
	case cmdVacancies:
		if registered(cand) {
			return h.offerVacancies(ctx, cand, msgChooseVacancy)
		}
		if err := h.send(ctx, cand.ChatID, Reply{Text: msgRegisterFirst}); err != nil {
			return err
		}
		return h.prompt(ctx, cand)
	}

	if !cand.State.Valid() {
		log.Warn("unknown chat state, restarting the dialogue", zap.String("state", string(cand.State)))
		return h.restart(ctx, cand)
	}

	switch cand.State {
	case hr.StateAwaitingEmail:
		return h.handleEmail(ctx, log, cand, u.Text)
	case hr.StateAwaitingResume:
		return h.handleResume(ctx, log, cand, u)
	case hr.StateAwaitingVacancy:
		return h.handleVacancy(ctx, log, cand, u.Text)
	case hr.StateInInterview:
		return h.handleAnswer(ctx, log, cand, u.Text)
	case hr.StateFinished:
		return h.send(ctx, cand.ChatID, Reply{Text: msgInterviewOver})
	}
	return nil
}

// restart sends the candidate back to the first step that still lacks data.
func (h *Handler) restart(ctx context.Context, cand hr.Candidate) error {
	if registered(cand) {
		return h.offerVacancies(ctx, cand, msgChooseVacancy)
	}

	if _, err := h.setState(ctx, cand, hr.StateAwaitingEmail); err != nil {
		return err
	}
	return h.send(ctx, cand.ChatID, Reply{Text: msgWelcome})
}

// prompt repeats the request of the current step.
func (h *Handler) prompt(ctx context.Context, cand hr.Candidate) error {
	switch cand.State {
	case hr.StateAwaitingResume:
		return h.send(ctx, cand.ChatID, Reply{Text: msgAskResume})
	default:
		return h.send(ctx, cand.ChatID, Reply{Text: msgWelcome})
	}
}

func (h *Handler) handleEmail(ctx context.Context, log *zap.Logger, cand hr.Candidate, text string) error {
	email := strings.TrimSpace(text)
	if err := h.validate.Var(email, "required,email"); err != nil {
		return h.send(ctx, cand.ChatID, Reply{Text: msgInvalidEmail})
	}

	upd := hr.CandidateUpdate{Email: &email}

	known, err := h.store.CandidateWithResumeByEmail(ctx, email)
	switch {
	case err == nil && known.ID != cand.ID:
		upd.Resume = &known.Resume
		log.Info("reusing resume of a known candidate", zap.Int64("known_candidate_id", known.ID))
	case err != nil && !errors.Is(err, hr.ErrNotFound):
		return fmt.Errorf("look up email: %w", err)
	}

	if upd.Resume != nil || cand.HasResume() {
		state := hr.StateAwaitingVacancy
		upd.State = &state
		cand, err = h.store.UpdateCandidate(ctx, cand.ID, upd)
		if err != nil {
			return fmt.Errorf("save email: %w", err)
		}
		if err := h.send(ctx, cand.ChatID, Reply{Text: msgResumeFound}); err != nil {
			return err
		}
		return h.offerVacancies(ctx, cand, msgChooseVacancy)
	}

	state := hr.StateAwaitingResume
	upd.State = &state
	if _, err := h.store.UpdateCandidate(ctx, cand.ID, upd); err != nil {
		return fmt.Errorf("save email: %w", err)
	}
	return h.send(ctx, cand.ChatID, Reply{Text: msgAskResume})
}

func (h *Handler) handleResume(ctx context.Context, log *zap.Logger, cand hr.Candidate, u Update) error {
	var resume string

	switch {
	case u.Document != nil:
		text, err := h.readDocument(ctx, *u.Document)
		if err != nil {
			log.Warn("resume document rejected",
				zap.String("file_name", u.Document.FileName),
				zap.String("mime_type", u.Document.MIMEType),
				zap.Error(err),
			)
			return h.send(ctx, cand.ChatID, Reply{Text: msgResumeUnreadable})
		}
		resume = text
	case utf8.RuneCountInString(strings.TrimSpace(u.Text)) >= MinResumeChars:
		resume = strings.TrimSpace(u.Text)
	default:
		return h.send(ctx, cand.ChatID, Reply{Text: msgAskResume})
	}

	state := hr.StateAwaitingVacancy
	cand, err := h.store.UpdateCandidate(ctx, cand.ID, hr.CandidateUpdate{Resume: &resume, State: &state})
	if err != nil {
		return fmt.Errorf("save resume: %w", err)
	}
	log.Info("resume saved", zap.Int("resume_length", utf8.RuneCountInString(resume)))

	if err := h.send(ctx, cand.ChatID, Reply{Text: msgResumeSaved}); err != nil {
		return err
	}
	return h.offerVacancies(ctx, cand, msgChooseVacancy)
}

func (h *Handler) readDocument(ctx context.Context, doc Document) (string, error) {
	if doc.Size > MaxResumeSize {
		return "", ErrDocumentTooLarge
	}

	data, err := h.messenger.Download(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("download document: %w", err)
	}

	text, err := h.resumes.Extract(data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("document has no text")
	}
	return text, nil
}

func (h *Handler) handleVacancy(ctx context.Context, log *zap.Logger, cand hr.Candidate, text string) error {
	vacancy, err := h.catalog.VacancyByName(ctx, strings.TrimSpace(text))
	if errors.Is(err, hr.ErrNotFound) {
		return h.offerVacancies(ctx, cand, msgUnknownVacancy)
	}
	if err != nil {
		return fmt.Errorf("find vacancy: %w", err)
	}

	existing, err := h.store.SessionFor(ctx, cand.ID, vacancy.ID)
	switch {
	case err == nil && existing.Finished():
		return h.offerVacancies(ctx, cand, msgAlreadyInterviewed)
	case err != nil && !errors.Is(err, hr.ErrNotFound):
		return fmt.Errorf("find session: %w", err)
	}

	requirements, err := h.catalog.Requirements(ctx, vacancy.ID)
	if err != nil {
		return fmt.Errorf("load requirements: %w", err)
	}
	if err := hr.ValidateRequirements(requirements); err != nil {
		log.Warn("vacancy cannot be interviewed for", zap.Int64("vacancy_id", vacancy.ID), zap.Error(err))
		return h.offerVacancies(ctx, cand, msgVacancyUnavailable)
	}

	session, err := h.store.CreateSession(ctx, cand.ID, vacancy.ID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	log = logger.WithSession(h.logger, session.ID, cand.ChatID)

	is := interview.Session{ID: session.ID, ChatID: cand.ChatID, Candidate: cand, Requirements: requirements}
	turn, err := h.interviewer.Start(ctx, is)
	if err != nil {
		return fmt.Errorf("start interview: %w", err)
	}

	if cand, err = h.setState(ctx, cand, hr.StateInInterview); err != nil {
		return err
	}
	log.Info("interview started", zap.Int64("vacancy_id", vacancy.ID))

	return h.deliver(ctx, log, cand, session, is, turn)
}

func (h *Handler) handleAnswer(ctx context.Context, log *zap.Logger, cand hr.Candidate, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	session, err := h.store.ActiveSession(ctx, cand.ID)
	if errors.Is(err, hr.ErrNotFound) {
		return h.offerVacancies(ctx, cand, msgChooseVacancy)
	}
	if err != nil {
		return fmt.Errorf("find active session: %w", err)
	}
	log = logger.WithSession(h.logger, session.ID, cand.ChatID)

	requirements, err := h.catalog.Requirements(ctx, session.VacancyID)
	if err != nil {
		return fmt.Errorf("load requirements: %w", err)
	}
	is := interview.Session{ID: session.ID, ChatID: cand.ChatID, Candidate: cand, Requirements: requirements}

	turn, _, err := h.interviewer.Advance(ctx, is, text)
	if errors.Is(err, interview.ErrNotStarted) {
		// The session exists without a greeting: open it, then record the answer.
		if _, err := h.interviewer.Start(ctx, is); err != nil {
			return fmt.Errorf("start interview: %w", err)
		}
		log.Info("interview opened on the first answer")
		turn, _, err = h.interviewer.Advance(ctx, is, text)
	}
	if errors.Is(err, interview.ErrSessionFinished) {
		// The reply was stored but the session was not closed.
		if err := h.finish(ctx, log, cand, session, is); err != nil {
			return err
		}
		return h.send(ctx, cand.ChatID, Reply{Text: msgInterviewOver})
	}
	if err != nil {
		return fmt.Errorf("advance interview: %w", err)
	}

	return h.deliver(ctx, log, cand, session, is, turn)
}

// deliver closes the session when the turn is final and sends the question.
func (h *Handler) deliver(ctx context.Context, log *zap.Logger, cand hr.Candidate, session hr.Session, is interview.Session, turn interview.Turn) error {
	if turn.Finished {
		if err := h.finish(ctx, log, cand, session, is); err != nil {
			return err
		}
	}
	return h.send(ctx, cand.ChatID, Reply{Text: turn.Question})
}

// finish marks the session finished, stores the marks and only then moves the
// chat to the finished state. Evaluation problems are logged only: the session
// stays finished and can be evaluated again.
func (h *Handler) finish(ctx context.Context, log *zap.Logger, cand hr.Candidate, session hr.Session, is interview.Session) error {
	session, err := h.store.FinishSession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	log.Info("interview finished")

	h.evaluate(ctx, log, session, is)

	if _, err := h.setState(ctx, cand, hr.StateFinished); err != nil {
		return err
	}
	return nil
}

func (h *Handler) evaluate(ctx context.Context, log *zap.Logger, session hr.Session, is interview.Session) {
	marks, ok, err := h.evaluator.Evaluate(ctx, is)
	if err != nil {
		log.Error("evaluation failed, run the evaluate command for this session", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	resolved := hr.ResolveMarks(marks, is.Requirements)
	if err := h.store.UpsertMarks(ctx, session, resolved); err != nil {
		log.Error("failed to store marks, run the evaluate command for this session", zap.Error(err))
		return
	}
	log.Info("marks stored", zap.Int("marks", len(resolved)))
}

func (h *Handler) offerVacancies(ctx context.Context, cand hr.Candidate, text string) error {
	if _, err := h.setState(ctx, cand, hr.StateAwaitingVacancy); err != nil {
		return err
	}

	vacancies, err := h.catalog.OpenVacancies(ctx)
	if err != nil {
		return fmt.Errorf("list vacancies: %w", err)
	}
	if len(vacancies) == 0 {
		return h.send(ctx, cand.ChatID, Reply{Text: msgNoVacancies})
	}

	names := make([]string, 0, len(vacancies))
	for _, v := range vacancies {
		names = append(names, v.Name)
	}
	return h.send(ctx, cand.ChatID, Reply{Text: text, Keyboard: names})
}

func (h *Handler) setState(ctx context.Context, cand hr.Candidate, state hr.ChatState) (hr.Candidate, error) {
	if cand.State == state {
		return cand, nil
	}
	updated, err := h.store.UpdateCandidate(ctx, cand.ID, hr.CandidateUpdate{State: &state})
	if err != nil {
		return cand, fmt.Errorf("set state %s: %w", state, err)
	}
	return updated, nil
}

func (h *Handler) send(ctx context.Context, chatID int64, reply Reply) error {
	if err := h.messenger.Send(ctx, chatID, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func registered(c hr.Candidate) bool {
	return strings.TrimSpace(c.Email) != "" && c.HasResume()
}

// recentIDs remembers the last n update ids so redelivered updates are
// processed once.
type recentIDs struct {
	ids   map[int]struct{}
	order []int
	size  int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{ids: make(map[int]struct{}, size), size: size}
}

// add reports whether id was not seen before.
func (r *recentIDs) add(id int) bool {
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.size {
		delete(r.ids, r.order[0])
		r.order = r.order[1:]
	}
	return true
}
