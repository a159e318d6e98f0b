package geoip

import (
	"encoding/json"
	"io"
	"time"

	"github.com/boltdb/bolt"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/charlesgreen/emailtrace/internal/ipaddr"
)

// DefaultTTL is how long a cached entry stays valid
const DefaultTTL = 24 * time.Hour

var bucketName = []byte("geoip_ip_data")

type entry struct {
	Enrichment *ipaddr.Enrichment `json:"enrichment"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Cache is an ipaddr.Enricher that keeps the answers of another Enricher in
// a bolt database. Failed lookups are not cached.
type Cache struct {
	db   *bolt.DB
	next ipaddr.Enricher
	ttl  time.Duration
	now  func() time.Time
	log  logrus.FieldLogger
}

// OpenCache opens or creates the cache database at path
func OpenCache(path string, next ipaddr.Enricher, ttl time.Duration, log logrus.FieldLogger) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open cache %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "failed to create cache bucket")
	}

	return &Cache{db: db, next: next, ttl: ttl, now: time.Now, log: log}, nil
}

// Lookup returns the cached enrichment while it is younger than the TTL and
// refreshes it from the wrapped Enricher otherwise
func (c *Cache) Lookup(literal string) (*ipaddr.Enrichment, error) {
	cached, ok := c.load(literal)
	if ok && cached.UpdatedAt.After(c.now().Add(-c.ttl)) {
		c.log.WithField("ip", literal).Trace("geoip cache hit")
		return cached.Enrichment, nil
	}

	e, err := c.next.Lookup(literal)
	if err != nil {
		return nil, err
	}
	if err := c.store(literal, entry{Enrichment: e, UpdatedAt: c.now()}); err != nil {
		c.log.WithField("ip", literal).WithError(err).Warn("failed to cache geoip data")
	}
	return e, nil
}

func (c *Cache) load(literal string) (entry, bool) {
	var e entry
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(literal)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return e, false
	}
	if err := json.Unmarshal(data, &e); err != nil {
		c.log.WithField("ip", literal).WithError(err).Debug("discarding unreadable cache entry")
		return e, false
	}
	return e, true
}

func (c *Cache) store(literal string, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "failed to encode cache entry")
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(literal), data)
	})
}

// Close closes the cache database. The wrapped Enricher is not closed.
func (c *Cache) Close() error {
	return c.db.Close()
}
