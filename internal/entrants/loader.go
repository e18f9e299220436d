package entrants

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
)

// Load reads an entrants CSV file. See Parse for the accepted format.
func Load(path string) ([]models.Entrant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open entrants file %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads "name,tickets" rows. Blank rows, rows whose first field starts
// with '#', and a header row whose second column is "tickets" are skipped.
// Fields are trimmed. Any row with a missing, unparseable or sub-1 ticket
// count, an empty name, or a name seen before fails with
// models.ErrInvalidEntrant.
func Parse(r io.Reader) ([]models.Entrant, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	// Names may carry literal quotes, e.g. Bob "Legs" Smith.
	reader.LazyQuotes = true

	var list []models.Entrant
	seen := make(map[string]int)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(models.ErrInvalidEntrant, "failed to read entrants CSV: %v", err)
		}
		line, _ := reader.FieldPos(0)

		if isBlank(row) {
			continue
		}
		name := strings.TrimSpace(row[0])
		if strings.HasPrefix(name, "#") {
			continue
		}
		if len(row) < 2 {
			return nil, errors.Wrapf(models.ErrInvalidEntrant, "line %d: entrant %q has no ticket count", line, name)
		}
		raw := strings.TrimSpace(row[1])
		if strings.EqualFold(raw, "tickets") {
			continue
		}
		tickets, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(models.ErrInvalidEntrant, "line %d: entrant %q has unparseable ticket count %q", line, name, raw)
		}
		e := models.Entrant{Name: name, Tickets: tickets}
		if err := check(e, seen, len(list)); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		list = append(list, e)
	}
	return list, nil
}

// Clean trims names and applies Parse's rules to a pool that did not come
// from CSV. The input slice is not modified.
func Clean(in []models.Entrant) ([]models.Entrant, error) {
	out := make([]models.Entrant, 0, len(in))
	seen := make(map[string]int, len(in))
	for i, e := range in {
		e.Name = strings.TrimSpace(e.Name)
		if err := check(e, seen, i); err != nil {
			return nil, errors.Wrapf(err, "entry %d", i+1)
		}
		out = append(out, e)
	}
	return out, nil
}

func check(e models.Entrant, seen map[string]int, pos int) error {
	if e.Name == "" {
		return errors.Wrap(models.ErrInvalidEntrant, "entrant name is empty")
	}
	if math.IsNaN(e.Tickets) || math.IsInf(e.Tickets, 0) {
		return errors.Wrapf(models.ErrInvalidEntrant, "entrant %s has a non-finite ticket count", e.Name)
	}
	if e.Tickets < 1 {
		return errors.Wrapf(models.ErrInvalidEntrant, "entrant %s must have at least 1 ticket", e.Name)
	}
	if prev, dup := seen[e.Name]; dup {
		return errors.Wrapf(models.ErrInvalidEntrant, "entrant %s is listed twice (entries %d and %d)", e.Name, prev+1, pos+1)
	}
	seen[e.Name] = pos
	return nil
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Fingerprint identifies a pool by content and order. Two runs with the same
// fingerprint, parameters and seed produce the same statistics.
func Fingerprint(pool []models.Entrant) string {
	h := xxhash.New()
	for _, e := range pool {
		io.WriteString(h, e.Name)
		h.Write([]byte{0})
		io.WriteString(h, strconv.FormatFloat(e.Tickets, 'g', -1, 64))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// TotalTickets sums the ticket counts of the pool.
func TotalTickets(pool []models.Entrant) float64 {
	var total float64
	for _, e := range pool {
		total += e.Tickets
	}
	return total
}
