// Package enrich fills empty lead fields from outside services: a phone
// number from Google Places, an AI summary and tags from Anthropic, and
// contact details from the company's own site. Enrichment only ever fills
// empty fields; a lookup that fails or finds nothing leaves the lead as is.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/contact"
	"github.com/sells-group/jobleads-cli/internal/metrics"
	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/resilience"
	"github.com/sells-group/jobleads-cli/internal/store"
)

// Service names used for breakers and metrics.
const (
	ServicePlaces  = "places"
	ServiceSummary = "summary"
	ServiceContact = "contact"
)

// PhoneLookup finds a company's public phone number. An empty string with
// a nil error means nothing was found.
type PhoneLookup interface {
	LookupPhone(ctx context.Context, company, address string) (string, error)
}

// Summary is an AI description of a lead.
type Summary struct {
	Text string   `json:"summary"`
	Tags []string `json:"tags"`
}

// Summarizer describes a lead. A nil Summary with a nil error means the
// model had nothing useful to say.
type Summarizer interface {
	Summarize(ctx context.Context, lead *model.Lead) (*Summary, error)
}

// ContactFinder crawls a company site for contact details.
type ContactFinder interface {
	Extract(ctx context.Context, page browser.Page, homepage string, logf func(string)) contact.Result
}

// Store is the lead persistence enrichment needs.
type Store interface {
	List(ctx context.Context, filter store.LeadFilter) ([]model.Lead, error)
	Update(ctx context.Context, id int64, u model.LeadUpdate) error
}

// Config wires a Service. Any of Phones, Summaries and Contacts may be nil;
// the matching pass is then skipped.
type Config struct {
	Store     Store
	Phones    PhoneLookup
	Summaries Summarizer
	Contacts  ContactFinder
	// Launcher opens the session used by the contact pass.
	Launcher browser.Launcher
	Breakers *resilience.Breakers
	Metrics  *metrics.Metrics
	OnLog    func(string)
}

// Options selects passes for one Run.
type Options struct {
	Phones    bool
	Summaries bool
	Contacts  bool
	IDs       []int64
	Limit     int
}

// Report counts what a Run did.
type Report struct {
	Checked         int `json:"checked"`
	PhonesFound     int `json:"phones_found"`
	SummariesAdded  int `json:"summaries_added"`
	ContactsVisited int `json:"contacts_visited"`
	EmailsFound     int `json:"emails_found"`
	Failures        int `json:"failures"`
}

// Service runs enrichment passes over stored leads.
type Service struct {
	cfg Config
	log *zap.Logger
}

// New returns a Service.
func New(cfg Config) *Service {
	if cfg.Breakers == nil {
		cfg.Breakers = resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Service{cfg: cfg, log: zap.L().With(zap.String("component", "enrich"))}
}

// Run loads the leads missing any selected field and fills what it can.
// Only a failure to load leads is returned; per-lead failures are counted.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	rep := &Report{}
	if opts.Phones && s.cfg.Phones != nil {
		if err := s.pass(ctx, opts, store.LeadFilter{MissingPhone: true}, rep, s.fillPhone); err != nil {
			return rep, err
		}
	}
	if opts.Summaries && s.cfg.Summaries != nil {
		if err := s.pass(ctx, opts, store.LeadFilter{MissingSummary: true}, rep, s.fillSummary); err != nil {
			return rep, err
		}
	}
	if opts.Contacts && s.cfg.Contacts != nil && s.cfg.Launcher != nil {
		if err := s.contactPass(ctx, opts, rep); err != nil {
			return rep, err
		}
	}
	if open := s.cfg.Breakers.Open(); len(open) > 0 {
		s.log.Warn("services skipped after repeated failures", zap.Strings("services", open))
	}
	s.log.Info("enrichment finished",
		zap.Int("checked", rep.Checked),
		zap.Int("phones", rep.PhonesFound),
		zap.Int("summaries", rep.SummariesAdded),
		zap.Int("failures", rep.Failures),
	)
	return rep, nil
}

func (s *Service) load(ctx context.Context, opts Options, f store.LeadFilter) ([]model.Lead, error) {
	f.IDs = opts.IDs
	f.Limit = opts.Limit
	if f.Limit <= 0 {
		f.Limit = 1000
	}
	leads, err := s.cfg.Store.List(ctx, f)
	return leads, eris.Wrap(err, "enrich: load leads")
}

func (s *Service) pass(ctx context.Context, opts Options, f store.LeadFilter, rep *Report, fill func(context.Context, *model.Lead, *Report) error) error {
	leads, err := s.load(ctx, opts, f)
	if err != nil {
		return err
	}
	for i := range leads {
		if ctx.Err() != nil {
			return nil
		}
		rep.Checked++
		if err := fill(ctx, &leads[i], rep); err != nil {
			rep.Failures++
			s.log.Warn("enrich lead", zap.Int64("lead_id", leads[i].ID), zap.Error(err))
		}
	}
	return nil
}

// call runs fn behind the service's breaker and records the outcome.
func call[T any](ctx context.Context, s *Service, service string, fn func(context.Context) (T, error)) (T, error) {
	v, err := resilience.ExecuteVal(ctx, s.cfg.Breakers.Get(service), fn)
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		s.cfg.Metrics.Enrich(service, "skipped")
	case err != nil:
		s.cfg.Metrics.Enrich(service, "error")
	default:
		s.cfg.Metrics.Enrich(service, "ok")
	}
	return v, err
}

func (s *Service) fillPhone(ctx context.Context, lead *model.Lead, rep *Report) error {
	if lead.Phone != "" || lead.CompanyName == "" {
		return nil
	}
	phone, err := call(ctx, s, ServicePlaces, func(ctx context.Context) (string, error) {
		return s.cfg.Phones.LookupPhone(ctx, lead.CompanyName, lead.Address)
	})
	if err != nil || phone == "" {
		return err
	}
	if err := s.cfg.Store.Update(ctx, lead.ID, model.LeadUpdate{Phone: &phone}); err != nil {
		return eris.Wrapf(err, "enrich: save phone for lead %d", lead.ID)
	}
	rep.PhonesFound++
	s.logf(fmt.Sprintf("%s: phone %s", lead.CompanyName, phone))
	return nil
}

func (s *Service) fillSummary(ctx context.Context, lead *model.Lead, rep *Report) error {
	if lead.AISummary != "" {
		return nil
	}
	sum, err := call(ctx, s, ServiceSummary, func(ctx context.Context) (*Summary, error) {
		return s.cfg.Summaries.Summarize(ctx, lead)
	})
	if err != nil || sum == nil || sum.Text == "" {
		return err
	}
	u := model.LeadUpdate{AISummary: &sum.Text}
	if len(lead.AITags) == 0 && len(sum.Tags) > 0 {
		u.AITags = sum.Tags
	}
	if err := s.cfg.Store.Update(ctx, lead.ID, u); err != nil {
		return eris.Wrapf(err, "enrich: save summary for lead %d", lead.ID)
	}
	rep.SummariesAdded++
	return nil
}

// contactPass crawls the homepage of every lead that has one but lacks a
// phone or an email, on a single page reused across leads.
func (s *Service) contactPass(ctx context.Context, opts Options, rep *Report) error {
	f := store.LeadFilter{HasHomepage: true}
	leads, err := s.load(ctx, opts, f)
	if err != nil {
		return err
	}
	var todo []*model.Lead
	for i := range leads {
		if leads[i].Phone == "" || leads[i].Email == "" {
			todo = append(todo, &leads[i])
		}
	}
	if len(todo) == 0 {
		return nil
	}

	session, err := s.cfg.Launcher.Launch(ctx)
	if err != nil {
		return eris.Wrap(err, "enrich: launch browser")
	}
	defer session.Close() //nolint:errcheck
	page, err := session.NewPage(ctx)
	if err != nil {
		return eris.Wrap(err, "enrich: open page")
	}
	defer page.Close() //nolint:errcheck

	for _, lead := range todo {
		if ctx.Err() != nil {
			return nil
		}
		rep.Checked++
		found := s.cfg.Contacts.Extract(ctx, page, lead.HomepageURL, s.logf)
		rep.ContactsVisited++
		s.cfg.Metrics.ContactVisited(found.Visited, found.Phone != "" || found.Email != "")

		u := model.LeadUpdate{}
		if lead.Phone == "" && found.Phone != "" {
			u.Phone = &found.Phone
			rep.PhonesFound++
		}
		if lead.Email == "" && found.Email != "" {
			u.Email = &found.Email
			rep.EmailsFound++
		}
		if lead.ContactFormURL == "" && found.ContactPageURL != "" {
			u.ContactFormURL = &found.ContactPageURL
		}
		if lead.ScrapeStatus != model.ScrapeStatusStep2 {
			step2 := model.ScrapeStatusStep2
			u.ScrapeStatus = &step2
		}
		if u.IsEmpty() {
			continue
		}
		if err := s.cfg.Store.Update(ctx, lead.ID, u); err != nil {
			rep.Failures++
			s.log.Warn("save contact details", zap.Int64("lead_id", lead.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) logf(msg string) {
	s.log.Debug(msg)
	if s.cfg.OnLog != nil {
		s.cfg.OnLog(msg)
	}
}
