package badger

import (
	"encoding/binary"
	"strings"
	"time"
)

// Key families. Every key is keyspace + family + sep + segments joined by sep.
const (
	recordPrefix      = "rec" // rec, table, key -> JSON document
	vectorPrefix      = "vec" // vec, table, key -> packed float32 embedding
	edgePrefix        = "edg" // edg, relation, fromID, toID -> created
	reverseEdgePrefix = "rev" // rev, relation, toID, fromID -> created
	childPrefix       = "chi" // chi, parentID, childID
	termPrefix        = "trm" // trm, table, term, key -> term frequency
	docLenPrefix      = "len" // len, table, key -> indexed token count
	uniquePrefix      = "unq" // unq, table, field, value -> key
	singletonPrefix   = "one" // one, canonical id -> JSON document
	jobPrefix         = "job" // job, jobID -> JSON job
	jobQueuePrefix    = "jqu" // jqu, created+seq -> jobID
	metaPrefix        = "meta"
)

const sep = "\x00"

// keyspace is the namespace/database prefix shared by every key of a backend.
type keyspace string

func newKeyspace(namespace, database string) keyspace {
	return keyspace(namespace + sep + database + sep)
}

// key joins segments under the keyspace.
func (k keyspace) key(parts ...string) []byte {
	return []byte(string(k) + strings.Join(parts, sep))
}

// prefix is key plus a trailing separator, for scanning everything below parts.
func (k keyspace) prefix(parts ...string) []byte {
	return append(k.key(parts...), sep...)
}

func (k keyspace) record(table, key string) []byte {
	return k.key(recordPrefix, table, key)
}

func (k keyspace) vector(table, key string) []byte {
	return k.key(vectorPrefix, table, key)
}

func (k keyspace) edge(relation, from, to string) []byte {
	return k.key(edgePrefix, relation, from, to)
}

func (k keyspace) reverseEdge(relation, to, from string) []byte {
	return k.key(reverseEdgePrefix, relation, to, from)
}

func (k keyspace) child(parentID, childID string) []byte {
	return k.key(childPrefix, parentID, childID)
}

func (k keyspace) term(table, term, key string) []byte {
	return k.key(termPrefix, table, term, key)
}

func (k keyspace) docLen(table, key string) []byte {
	return k.key(docLenPrefix, table, key)
}

func (k keyspace) unique(table, field, value string) []byte {
	return k.key(uniquePrefix, table, field, value)
}

func (k keyspace) singleton(id string) []byte {
	return k.key(singletonPrefix, id)
}

func (k keyspace) job(jobID string) []byte {
	return k.key(jobPrefix, jobID)
}

// jobQueue orders pending jobs by creation time, then submission sequence.
// Both are written BigEndian so lexicographic order matches numeric order.
func (k keyspace) jobQueue(created time.Time, seq uint64) []byte {
	buf := k.prefix(jobQueuePrefix)
	buf = binary.BigEndian.AppendUint64(buf, uint64(created.UnixNano()))
	return binary.BigEndian.AppendUint64(buf, seq)
}

func (k keyspace) migrationVersion() []byte {
	return k.key(metaPrefix, "migration_version")
}
