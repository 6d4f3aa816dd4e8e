package main

import (
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/cicoord/cicoord/pkg/config"
	"github.com/cicoord/cicoord/pkg/kvstore"
)

const memcachedMaxIdleConns = 2

// newStore connects to the configured backend. The returned func
// releases any resources the store holds.
func newStore(cfg config.Config, logger log.Logger) (kvstore.Store, func(), error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, nil, err
	}
	logger = log.With(logger, "component", "store", "backend", cfg.StoreBackend)

	var store kvstore.Store
	done := func() {}
	switch cfg.StoreBackend {
	case config.StoreS3:
		s3, err := kvstore.NewS3Store(kvstore.S3Config{
			Host:      cfg.S3Host,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Insecure:  cfg.S3Insecure,
		})
		if err != nil {
			return nil, nil, err
		}
		store = s3
	case config.StoreRedis:
		redis := kvstore.NewRedisStore(kvstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			Timeout:  cfg.RedisTimeout,
		})
		store, done = redis, func() { redis.Close() }
	case config.StoreMemcached:
		mc := kvstore.MemcacheConfig{
			Host:         cfg.MemcachedHostname,
			Service:      cfg.MemcachedService,
			Timeout:      cfg.MemcachedTimeout,
			Logger:       logger,
			MaxIdleConns: memcachedMaxIdleConns,
		}
		var memcache *kvstore.MemcacheStore
		if len(cfg.MemcachedServers) > 0 {
			memcache = kvstore.NewFixedServerMemcacheStore(mc, cfg.MemcachedServers...)
		} else {
			memcache = kvstore.NewMemcacheStore(mc)
		}
		store, done = memcache, memcache.Stop
	case config.StoreConfigMap:
		restConfig, err := kubeConfig(cfg.Kubeconfig)
		if err != nil {
			return nil, nil, err
		}
		client, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating Kubernetes client")
		}
		store = kvstore.NewConfigMapStore(client, cfg.ConfigMapNamespace, cfg.ConfigMapName)
	}

	logger.Log("store", store)
	return kvstore.NewInstrumentedStore(store, cfg.StoreBackend), done, nil
}

func kubeConfig(path string) (*rest.Config, error) {
	if path == "" {
		restConfig, err := rest.InClusterConfig()
		return restConfig, errors.Wrap(err, "reading in-cluster Kubernetes configuration")
	}
	restConfig, err := clientcmd.BuildConfigFromFlags("", path)
	return restConfig, errors.Wrapf(err, "reading kubeconfig %s", path)
}
