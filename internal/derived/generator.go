// Package derived fabricates fee and attendance figures for a student on first access
// and serves the persisted copy afterwards.
package derived

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"

	"edustatus/internal/apperr"
	"edustatus/internal/logger"
	"edustatus/internal/metrics"
	"edustatus/internal/store"
)

const (
	TotalDays      = 120
	MaxAbsentDays  = 20 // exclusive
	FinePerAbsence = 50

	Tuition       = 75000
	Bus           = 15000
	Hostel        = 45000
	Miscellaneous = 5000
	TotalFees     = Tuition + Bus + Hostel + Miscellaneous
)

type Fees struct {
	Tuition       int `json:"tuition"`
	Bus           int `json:"bus"`
	Hostel        int `json:"hostel"`
	Miscellaneous int `json:"miscellaneous"`
	Total         int `json:"total"`
	Paid          int `json:"paid"`
	Balance       int `json:"balance"`
}

type Attendance struct {
	TotalDays   int `json:"totalDays"`
	PresentDays int `json:"presentDays"`
	AbsentDays  int `json:"absentDays"`
	Percentage  int `json:"percentage"`
	Fine        int `json:"fine"`
}

// StudentData is the derived record stored per user.
type StudentData struct {
	UserID     string     `json:"userId"`
	Fees       Fees       `json:"fees"`
	Attendance Attendance `json:"attendance"`
}

// Generator returns StudentData for a user, creating it once.
type Generator struct {
	data  *store.Mapping[StudentData]
	locks store.Locks
	log   zerolog.Logger

	// rand.Rand is not safe for concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGenerator creates a generator over st. A nil rng uses an unseeded source.
func NewGenerator(st *store.Store, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		data: store.NewMapping[StudentData](st, store.KindDerived),
		rng:  rng,
		log:  logger.Get("derived"),
	}
}

// GetOrCreate returns the stored record for userID, generating and persisting one first
// if none exists.
func (g *Generator) GetOrCreate(ctx context.Context, userID string) (StudentData, error) {
	if userID == "" {
		return StudentData{}, apperr.ErrNotAuthenticated
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	existing, ok, err := g.data.Get(ctx, userID)
	if err != nil {
		return StudentData{}, err
	}
	if ok {
		return existing, nil
	}

	rec, created, err := g.data.PutIfAbsent(ctx, userID, g.generate(userID))
	if err != nil {
		return StudentData{}, fmt.Errorf("save derived data: %w", err)
	}
	if !created {
		return rec, nil
	}
	metrics.DerivedGenerated.Inc()
	g.log.Info().Str("user_id", userID).Msg("derived data generated")
	return rec, nil
}

func (g *Generator) draw() (absent int, paidFrac float64) {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.IntN(MaxAbsentDays), g.rng.Float64()
}

func (g *Generator) generate(userID string) StudentData {
	absent, paidFrac := g.draw()

	present := TotalDays - absent
	paid := int(math.Round(paidFrac * TotalFees))
	return StudentData{
		UserID: userID,
		Fees: Fees{
			Tuition:       Tuition,
			Bus:           Bus,
			Hostel:        Hostel,
			Miscellaneous: Miscellaneous,
			Total:         TotalFees,
			Paid:          paid,
			Balance:       TotalFees - paid,
		},
		Attendance: Attendance{
			TotalDays:   TotalDays,
			PresentDays: present,
			AbsentDays:  absent,
			Percentage:  int(math.Round(float64(present) / TotalDays * 100)),
			Fine:        absent * FinePerAbsence,
		},
	}
}
