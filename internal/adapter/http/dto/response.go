package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID        string          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:        a.ID,
		Balance:   a.Balance,
		Version:   a.Version,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// ParticipantResponse represents a participant profile in API responses.
type ParticipantResponse struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"display_name"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	Skills          []string        `json:"skills"`
	HoursTaught     decimal.Decimal `json:"hours_taught"`
	HoursLearned    decimal.Decimal `json:"hours_learned"`
	SessionsTaught  int             `json:"sessions_taught"`
	SessionsLearned int             `json:"sessions_learned"`
	Rating          decimal.Decimal `json:"rating"`
	RatingCount     int             `json:"rating_count"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ParticipantFromDomain converts a domain participant to response.
func ParticipantFromDomain(p *domain.Participant) *ParticipantResponse {
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	return &ParticipantResponse{
		ID:              p.ID,
		DisplayName:     p.DisplayName,
		HourlyRate:      p.HourlyRate,
		Skills:          skills,
		HoursTaught:     p.Stats.HoursTaught,
		HoursLearned:    p.Stats.HoursLearned,
		SessionsTaught:  p.Stats.SessionsTaught,
		SessionsLearned: p.Stats.SessionsLearned,
		Rating:          p.Rating(),
		RatingCount:     p.Stats.RatingCount,
		Active:          p.Active,
		CreatedAt:       p.CreatedAt,
	}
}

// ParticipantsFromDomain converts domain participants to responses.
func ParticipantsFromDomain(participants []*domain.Participant) []*ParticipantResponse {
	result := make([]*ParticipantResponse, len(participants))
	for i, p := range participants {
		result[i] = ParticipantFromDomain(p)
	}
	return result
}

// ProfileResponse is a participant with its account.
type ProfileResponse struct {
	Participant *ParticipantResponse `json:"participant"`
	Account     *AccountResponse     `json:"account"`
}

// ProfileFromUseCase converts a profile to response.
func ProfileFromUseCase(p *usecase.Profile) *ProfileResponse {
	return &ProfileResponse{
		Participant: ParticipantFromDomain(p.Participant),
		Account:     AccountFromDomain(p.Account),
	}
}

// ListParticipantsResponse represents a page of participants.
type ListParticipantsResponse struct {
	Participants []*ParticipantResponse `json:"participants"`
}

// TransactionResponse represents a ledger entry in API responses.
type TransactionResponse struct {
	ID                    string          `json:"id"`
	AccountID             string          `json:"account_id"`
	CounterpartyID        *string         `json:"counterparty_id,omitempty"`
	SessionID             *string         `json:"session_id,omitempty"`
	Kind                  string          `json:"kind"`
	Amount                decimal.Decimal `json:"amount"`
	BalanceBefore         decimal.Decimal `json:"balance_before"`
	BalanceAfter          decimal.Decimal `json:"balance_after"`
	Status                string          `json:"status"`
	PairedTransactionID   *string         `json:"paired_transaction_id,omitempty"`
	ReversesTransactionID *string         `json:"reverses_transaction_id,omitempty"`
	Description           string          `json:"description,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// TransactionFromDomain converts a domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                    t.ID,
		AccountID:             t.AccountID,
		CounterpartyID:        t.CounterpartyID,
		SessionID:             t.SessionID,
		Kind:                  string(t.Kind),
		Amount:                t.Amount,
		BalanceBefore:         t.BalanceBefore,
		BalanceAfter:          t.BalanceAfter,
		Status:                string(t.Status),
		PairedTransactionID:   t.PairedTransactionID,
		ReversesTransactionID: t.ReversesTransactionID,
		Description:           t.Description,
		CreatedAt:             t.CreatedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(entries []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(entries))
	for i, t := range entries {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// ListTransactionsResponse represents a page of ledger entries.
type ListTransactionsResponse struct {
	Transactions []*TransactionResponse `json:"transactions"`
}

// TransferResponse holds both legs of a transfer.
type TransferResponse struct {
	Debit    *TransactionResponse `json:"debit"`
	Credit   *TransactionResponse `json:"credit"`
	Replayed bool                 `json:"replayed,omitempty"`
}

// TransferFromDomain converts a transfer result to response.
func TransferFromDomain(r *domain.TransferResult) *TransferResponse {
	return &TransferResponse{
		Debit:    TransactionFromDomain(r.Debit),
		Credit:   TransactionFromDomain(r.Credit),
		Replayed: r.Replayed,
	}
}

// StreamResponse is a page of the transaction stream.
type StreamResponse struct {
	Events []domain.TransactionStreamEvent `json:"events"`
	// Next is the cursor for the following page, empty when the page is short.
	Next string `json:"next,omitempty"`
}

// StatusChangeResponse is one entry of a session's history.
type StatusChangeResponse struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// CancellationResponse describes a cancelled session.
type CancellationResponse struct {
	By     string    `json:"by"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// ReviewResponse is the learner's review.
type ReviewResponse struct {
	Rating  int       `json:"rating"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID              string                 `json:"id"`
	TeacherID       string                 `json:"teacher_id"`
	LearnerID       string                 `json:"learner_id"`
	Skill           string                 `json:"skill"`
	ScheduledAt     time.Time              `json:"scheduled_at"`
	DurationMinutes int                    `json:"duration_minutes"`
	CreditCost      decimal.Decimal        `json:"credit_cost"`
	Status          string                 `json:"status"`
	Version         int64                  `json:"version"`
	TransferID      *string                `json:"transfer_id,omitempty"`
	History         []StatusChangeResponse `json:"history"`
	Cancellation    *CancellationResponse  `json:"cancellation,omitempty"`
	Review          *ReviewResponse        `json:"review,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// SessionFromDomain converts a domain session to response.
func SessionFromDomain(s *domain.Session) *SessionResponse {
	resp := &SessionResponse{
		ID:              s.ID,
		TeacherID:       s.TeacherID,
		LearnerID:       s.LearnerID,
		Skill:           s.Skill,
		ScheduledAt:     s.ScheduledAt,
		DurationMinutes: s.DurationMinutes,
		CreditCost:      s.CreditCost,
		Status:          string(s.Status),
		Version:         s.Version,
		TransferID:      s.TransferID,
		History:         make([]StatusChangeResponse, len(s.StatusHistory)),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	for i, c := range s.StatusHistory {
		resp.History[i] = StatusChangeResponse{
			From:   string(c.From),
			To:     string(c.To),
			Actor:  c.Actor,
			Reason: c.Reason,
			At:     c.At,
		}
	}
	if c := s.Cancellation; c != nil {
		resp.Cancellation = &CancellationResponse{By: c.By, Reason: c.Reason, At: c.At}
	}
	if r := s.Review; r != nil {
		resp.Review = &ReviewResponse{Rating: r.Rating, Comment: r.Comment, At: r.At}
	}
	return resp
}

// SessionsFromDomain converts domain sessions to responses.
func SessionsFromDomain(sessions []*domain.Session) []*SessionResponse {
	result := make([]*SessionResponse, len(sessions))
	for i, s := range sessions {
		result[i] = SessionFromDomain(s)
	}
	return result
}

// ListSessionsResponse represents a page of sessions.
type ListSessionsResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}

// RoomResponse describes a session's call room.
type RoomResponse struct {
	SessionID string           `json:"session_id"`
	Members   []string         `json:"members"`
	Session   *SessionResponse `json:"session,omitempty"`
}

// RoomFromUseCase converts a room to response.
func RoomFromUseCase(r *usecase.Room) *RoomResponse {
	resp := &RoomResponse{SessionID: r.SessionID, Members: r.Members}
	if resp.Members == nil {
		resp.Members = []string{}
	}
	if r.Session != nil {
		resp.Session = SessionFromDomain(r.Session)
	}
	return resp
}

// ReconciliationResponse is the ledger consistency report.
type ReconciliationResponse struct {
	Consistent       bool            `json:"consistent"`
	TotalBalance     decimal.Decimal `json:"total_balance"`
	TotalSigned      decimal.Decimal `json:"total_signed"`
	Difference       decimal.Decimal `json:"difference"`
	UnpairedDebits   int             `json:"unpaired_debits"`
	NegativeAccounts int             `json:"negative_accounts"`
	CheckedAt        time.Time       `json:"checked_at"`
}

// ReconciliationFromUseCase converts a report to response.
func ReconciliationFromUseCase(r *usecase.ReconciliationReport) *ReconciliationResponse {
	return &ReconciliationResponse{
		Consistent:       r.Consistent,
		TotalBalance:     r.TotalBalance,
		TotalSigned:      r.TotalSigned,
		Difference:       r.Difference,
		UnpairedDebits:   r.UnpairedDebits,
		NegativeAccounts: r.NegativeAccounts,
		CheckedAt:        r.CheckedAt,
	}
}

// CallerResponse describes the authenticated caller.
type CallerResponse struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
