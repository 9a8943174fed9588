package badger

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// snippetWords bounds the number of words a snippet shows.
const snippetWords = 64

// textStats are the corpus totals BM25 needs for one table.
type textStats struct {
	Docs   int64 `json:"docs"`
	Tokens int64 `json:"tokens"`
}

func (k keyspace) textStats(table string) []byte {
	return k.key(metaPrefix, "text", table)
}

func loadTextStats(tx *badger.Txn, keys keyspace, table string) (textStats, error) {
	var st textStats
	err := getJSON(tx, keys.textStats(table), &st)
	if errors.Is(err, storage.ErrNotFound) {
		return textStats{}, nil
	}
	return st, err
}

// termFrequencies tokenizes the text fields of rec.
func termFrequencies(def *storage.TableDef, rec core.Record) (map[string]uint64, int64) {
	tf := map[string]uint64{}
	var n int64
	for _, field := range def.TextFields {
		for _, tok := range core.Tokenize(rec.String(field)) {
			tf[tok]++
			n++
		}
	}
	return tf, n
}

func indexText(tx *badger.Txn, keys keyspace, def *storage.TableDef, key string, rec core.Record) error {
	tf, n := termFrequencies(def, rec)
	for term, count := range tf {
		if err := tx.Set(keys.term(def.Name, term, key), binary.AppendUvarint(nil, count)); err != nil {
			return err
		}
	}
	if err := tx.Set(keys.docLen(def.Name, key), binary.AppendUvarint(nil, uint64(n))); err != nil {
		return err
	}
	st, err := loadTextStats(tx, keys, def.Name)
	if err != nil {
		return err
	}
	st.Docs++
	st.Tokens += n
	return setJSON(tx, keys.textStats(def.Name), st)
}

// unindexText removes the postings written for rec. Records never indexed are skipped.
func unindexText(tx *badger.Txn, keys keyspace, def *storage.TableDef, key string, rec core.Record) error {
	ok, err := exists(tx, keys.docLen(def.Name, key))
	if err != nil || !ok {
		return err
	}
	tf, n := termFrequencies(def, rec)
	for term := range tf {
		if err := tx.Delete(keys.term(def.Name, term, key)); err != nil {
			return err
		}
	}
	if err := tx.Delete(keys.docLen(def.Name, key)); err != nil {
		return err
	}
	st, err := loadTextStats(tx, keys, def.Name)
	if err != nil {
		return err
	}
	st.Docs = max(st.Docs-1, 0)
	st.Tokens = max(st.Tokens-n, 0)
	return setJSON(tx, keys.textStats(def.Name), st)
}

func readUvarint(item *badger.Item) (uint64, error) {
	var n uint64
	err := item.Value(func(val []byte) error {
		v, size := binary.Uvarint(val)
		if size <= 0 {
			return errors.New("corrupt varint")
		}
		n = v
		return nil
	})
	return n, err
}

type scoredKey struct {
	key   string
	score float64
}

// bm25 scores every record of table containing all terms.
func bm25(tx *badger.Txn, keys keyspace, table string, terms []string) ([]scoredKey, error) {
	st, err := loadTextStats(tx, keys, table)
	if err != nil || st.Docs == 0 {
		return nil, err
	}
	avgdl := float64(st.Tokens) / float64(st.Docs)
	if avgdl == 0 {
		avgdl = 1
	}

	postings := make([]map[string]uint64, len(terms))
	for i, term := range terms {
		postings[i] = map[string]uint64{}
		err := scanPrefix(tx, keys.prefix(termPrefix, table, term), false, func(suffix []byte, item *badger.Item) error {
			tf, err := readUvarint(item)
			if err != nil {
				return err
			}
			postings[i][string(suffix)] = tf
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(postings[i]) == 0 {
			return nil, nil
		}
	}

	var out []scoredKey
	for key := range postings[0] {
		item, err := tx.Get(keys.docLen(table, key))
		if err != nil {
			return nil, err
		}
		dl, err := readUvarint(item)
		if err != nil {
			return nil, err
		}
		score, matched := 0.0, true
		for _, p := range postings {
			tf, ok := p[key]
			if !ok {
				matched = false
				break
			}
			n := float64(len(p))
			idf := math.Log((float64(st.Docs)-n+0.5)/(n+0.5) + 1)
			f := float64(tf)
			score += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(dl)/avgdl))
		}
		if matched {
			out = append(out, scoredKey{key: key, score: score})
		}
	}
	return out, nil
}

// queryTerms tokenizes a query and drops repeats.
func queryTerms(query string) []string {
	var terms []string
	seen := map[string]bool{}
	for _, t := range core.Tokenize(query) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// snippet returns a window of text around the first matching word, with
// matching words wrapped in <mark> tags.
func snippet(text string, terms []string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	want := make(map[string]bool, len(terms))
	for _, t := range terms {
		want[t] = true
	}
	hit := func(w string) bool {
		for _, tok := range core.Tokenize(w) {
			if want[tok] {
				return true
			}
		}
		return false
	}

	first := 0
	for i, w := range words {
		if hit(w) {
			first = i
			break
		}
	}
	start := max(first-snippetWords/4, 0)
	end := min(start+snippetWords, len(words))
	start = max(end-snippetWords, 0)

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte(' ')
		}
		if hit(words[i]) {
			b.WriteString("<mark>" + words[i] + "</mark>")
		} else {
			b.WriteString(words[i])
		}
	}
	if end < len(words) {
		b.WriteString("...")
	}
	return b.String()
}
