/* Memcached-backed lease storage.

Items are stored without expiry, but memcached will still evict them
under memory pressure; an evicted lease reads as "unlocked". That is
the same outcome as a crashed holder passing its deadlock timeout,
only sooner, so only use this backend where the memcached instance is
not under memory pressure.

*/
package kvstore

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// MemcacheStore is a memcache client that gets its server list either
// from a fixed set of addresses or from SRV records, which it then
// periodically refreshes.
type MemcacheStore struct {
	client     *memcache.Client
	serverList *memcache.ServerList
	hostname   string
	service    string
	logger     log.Logger

	quit chan struct{}
	wait sync.WaitGroup
}

// MemcacheConfig defines how a MemcacheStore should be constructed.
type MemcacheConfig struct {
	Host           string
	Service        string
	Timeout        time.Duration
	UpdateInterval time.Duration
	Logger         log.Logger
	MaxIdleConns   int
}

// NewMemcacheStore discovers servers from the SRV records for
// config.Service at config.Host.
func NewMemcacheStore(config MemcacheConfig) *MemcacheStore {
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = time.Minute
	}
	var servers memcache.ServerList
	client := memcache.NewFromSelector(&servers)
	client.Timeout = config.Timeout
	client.MaxIdleConns = config.MaxIdleConns

	s := &MemcacheStore{
		client:     client,
		serverList: &servers,
		hostname:   config.Host,
		service:    config.Service,
		logger:     config.Logger,
		quit:       make(chan struct{}),
	}

	if err := s.updateFromSRVRecords(); err != nil {
		config.Logger.Log("err", errors.Wrapf(err, "setting memcache servers to '%v'", config.Host))
	}

	s.wait.Add(1)
	go s.updateLoop(config.UpdateInterval, s.updateFromSRVRecords)
	return s
}

// NewFixedServerMemcacheStore does not use DNS, and accepts a static
// list of servers.
func NewFixedServerMemcacheStore(config MemcacheConfig, addresses ...string) *MemcacheStore {
	var servers memcache.ServerList
	servers.SetServers(addresses...)
	client := memcache.NewFromSelector(&servers)
	client.Timeout = config.Timeout
	client.MaxIdleConns = config.MaxIdleConns

	return &MemcacheStore{
		client:     client,
		serverList: &servers,
		hostname:   strings.Join(addresses, ","),
		logger:     config.Logger,
		quit:       make(chan struct{}),
	}
}

func (s *MemcacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := s.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %q from memcache", key)
	}
	return item.Value, nil
}

func (s *MemcacheStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Set(&memcache.Item{Key: key, Value: value}); err != nil {
		return errors.Wrapf(err, "storing %q in memcache", key)
	}
	return nil
}

func (s *MemcacheStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.client.Delete(key)
	if err != nil && err != memcache.ErrCacheMiss {
		return errors.Wrapf(err, "deleting %q from memcache", key)
	}
	return nil
}

func (s *MemcacheStore) String() string {
	return "memcached://" + s.hostname
}

// Stop the memcache client.
func (s *MemcacheStore) Stop() {
	close(s.quit)
	s.wait.Wait()
}

func (s *MemcacheStore) updateLoop(updateInterval time.Duration, update func() error) {
	defer s.wait.Done()
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := update(); err != nil {
				s.logger.Log("err", errors.Wrap(err, "error updating memcache servers"))
			}
		case <-s.quit:
			return
		}
	}
}

// updateFromSRVRecords sets a memcache server list from SRV records.
// SRV priority & weight are ignored.
func (s *MemcacheStore) updateFromSRVRecords() error {
	_, addrs, err := net.LookupSRV(s.service, "tcp", s.hostname)
	if err != nil {
		return err
	}
	var servers []string
	for _, srv := range addrs {
		servers = append(servers, fmt.Sprintf("%s:%d", srv.Target, srv.Port))
	}
	// ServerList deterministically maps keys to _index_ of the server
	// list. Since DNS returns records in different order each time, we
	// sort so every contender picks the same server for the lock key.
	sort.Strings(servers)
	return s.serverList.SetServers(servers...)
}
