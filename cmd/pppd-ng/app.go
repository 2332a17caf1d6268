/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"

	"github.com/accel-ppp/pppd-ng/internal/config"
	"github.com/accel-ppp/pppd-ng/internal/ipdb"
	"github.com/accel-ppp/pppd-ng/internal/kif"
	"github.com/accel-ppp/pppd-ng/internal/metrics"
	"github.com/accel-ppp/pppd-ng/internal/raddict"
	"github.com/accel-ppp/pppd-ng/internal/radius"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"k8s.io/klog/v2"
)

var ready atomic.Bool

func main() {
	cfg := config.Default()
	cfg.BindFlags(flag.CommandLine)
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: pppd-ng [options]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	printVersion()
	flag.VisitAll(func(f *flag.Flag) {
		klog.Infof("FLAG: --%s=%q", f.Name, f.Value)
	})

	if err := cfg.Validate(); err != nil {
		klog.Fatalf("invalid configuration: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		_ = http.ListenAndServe(cfg.BindAddress, mux)
	}()

	dict := raddict.New()
	if err := dict.Load(cfg.DictionaryPath); err != nil {
		klog.Fatalf("loading RADIUS dictionary: %v", err)
	}
	klog.Infof("loaded %d RADIUS attributes from %s", dict.Len(), cfg.DictionaryPath)

	store, closeStore, err := newIPDBStore(cfg)
	if err != nil {
		klog.Fatalf("initializing address pool: %v", err)
	}
	defer closeStore()

	kernel := kif.NewKernel(cfg.StrictInterfaceProgramming)

	authClient := &radius.Client{
		Dict:    dict,
		Server:  cfg.AuthServer,
		Secret:  cfg.Secret,
		MaxTry:  cfg.MaxTry,
		Timeout: cfg.Timeout,
	}

	// store, kernel and authClient are handed to session.New for every
	// PPP session the tunnel transport (out of scope here) hands off;
	// wiring the transport itself requires the PPTP/L2TP collaborator
	// this daemon's scope explicitly excludes.
	klog.V(2).Infof("address pool, kernel programmer and RADIUS client (%s) ready", authClient.Server)
	klog.V(4).Infof("store: %T", store)
	klog.V(4).Infof("kernel strict mode: %v", kernel.Strict)

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	ready.Store(true)
	klog.Info("pppd-ng started")

	select {
	case sig := <-signalCh:
		klog.Infof("received shutdown signal: %q, initiating graceful shutdown...", sig)
		cancel()
	case <-ctx.Done():
		klog.Info("context cancelled, initiating graceful shutdown...")
	}
}

// newIPDBStore selects the bbolt-backed store when cfg.IPDBPath is set,
// otherwise an in-memory pool. Both satisfy ipdb.Store.
func newIPDBStore(cfg *config.Config) (ipdb.Store, func(), error) {
	if cfg.IPDBPath == "" {
		mem, err := ipdb.NewMemStore(cfg.IPPoolCIDR)
		if err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}
	bolt, err := ipdb.OpenBoltStore(cfg.IPDBPath, cfg.IPPoolCIDR)
	if err != nil {
		return nil, nil, err
	}
	return bolt, func() { bolt.Close() }, nil
}

func printVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	var vcsRevision, vcsTime string
	for _, f := range info.Settings {
		switch f.Key {
		case "vcs.revision":
			vcsRevision = f.Value
		case "vcs.time":
			vcsTime = f.Value
		}
	}
	klog.Infof("pppd-ng go %s build: %s time: %s", info.GoVersion, vcsRevision, vcsTime)
}
