package utils

import (
	"fmt"
	"isinFlow/internal/domain/model"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeEventGenerator produces plausible change-feed events for the records
// table. It is for demos only.
type ChangeEventGenerator struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	table  string
	issued []string
}

var (
	demoIssuers    = []string{"ACME Finance BV", "Nordic Power AB", "Helvetia Rail AG", "Iberia Telecom SA", "Baltic Ports AS"}
	demoCurrencies = []string{"EUR", "USD", "GBP", "CHF"}
	demoTypes      = []string{"Senior Unsecured", "Covered", "Subordinated"}
	demoMinSizes   = []string{"1k x 1k", "100k x 1k", "200k x 1k"}
)

func NewChangeEventGenerator(table string, seed int64) *ChangeEventGenerator {
	return &ChangeEventGenerator{
		rnd:   rand.New(rand.NewSource(seed)),
		table: table,
	}
}

// Generate returns count events. Roughly one in four updates an ISIN issued earlier.
func (g *ChangeEventGenerator) Generate(count int) []*model.ChangeEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	events := make([]*model.ChangeEvent, count)
	for i := 0; i < count; i++ {
		if len(g.issued) > 0 && g.rnd.Intn(4) == 0 {
			events[i] = g.update()
			continue
		}
		events[i] = g.insert()
	}
	return events
}

func (g *ChangeEventGenerator) insert() *model.ChangeEvent {
	isin := g.isin()
	g.issued = append(g.issued, isin)

	now := time.Now()
	return &model.ChangeEvent{
		ID:    uuid.NewString(),
		Type:  model.EventInsert,
		Table: g.table,
		Record: model.RawRecord{
			"isin":     isin,
			"issuer":   demoIssuers[g.rnd.Intn(len(demoIssuers))],
			"currency": demoCurrencies[g.rnd.Intn(len(demoCurrencies))],
			"amount":   float64(100+g.rnd.Intn(900)) * 1e6,
			"type":     demoTypes[g.rnd.Intn(len(demoTypes))],
			"min_size": demoMinSizes[g.rnd.Intn(len(demoMinSizes))],
			"status":   "scraped",
			"date":     now.Format("02.01.2006"),
			"time":     now.Format("15:04"),
		},
	}
}

func (g *ChangeEventGenerator) update() *model.ChangeEvent {
	isin := g.issued[g.rnd.Intn(len(g.issued))]
	return &model.ChangeEvent{
		ID:    uuid.NewString(),
		Type:  model.EventUpdate,
		Table: g.table,
		Record: model.RawRecord{
			"isin":   isin,
			"status": "submitted",
		},
	}
}

func (g *ChangeEventGenerator) isin() string {
	var b strings.Builder
	b.WriteString("XS")
	fmt.Fprintf(&b, "%010d", g.rnd.Int63n(1e10))
	return b.String()
}
