// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	klog "k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrlruntime "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	ctrlsig "sigs.k8s.io/controller-runtime/pkg/manager/signals"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	"github.com/virt-joiner/virt-joiner/controllers"
	pkgcfg "github.com/virt-joiner/virt-joiner/pkg/config"
	pkgctx "github.com/virt-joiner/virt-joiner/pkg/context"
	"github.com/virt-joiner/virt-joiner/pkg/ipa"
	"github.com/virt-joiner/virt-joiner/pkg/keytab"
	"github.com/virt-joiner/virt-joiner/pkg/record"
	"github.com/virt-joiner/virt-joiner/webhooks"
)

func main() {
	klog.InitFlags(nil)
	ctrllog.SetLogger(textlogger.NewLogger(textlogger.NewConfig()))
	setupLog := ctrllog.Log.WithName("entrypoint")

	defaultConfig, err := pkgcfg.Load()
	if err != nil {
		setupLog.Error(err, "problem loading configuration")
		os.Exit(1)
	}

	var (
		metricsAddr          string
		healthAddr           string
		profilerAddress      string
		webhookPort          int
		webhookCertDir       string
		leaderElectionEnable bool
	)

	flag.StringVar(
		&metricsAddr,
		"metrics-addr",
		":8083",
		"The address the metric endpoint binds to.")
	flag.StringVar(
		&healthAddr,
		"health-addr",
		":9445",
		"The address the health probe endpoint binds to.")
	flag.StringVar(
		&profilerAddress,
		"profiler-address",
		"",
		"Bind address to expose the pprof profiler.")
	flag.IntVar(
		&webhookPort,
		"webhook-port",
		9443,
		"The port on which the webhook server listens for admission requests.")
	flag.StringVar(
		&webhookCertDir,
		"webhook-cert-dir",
		"",
		"The directory that contains the webhook serving certificate and key.")
	flag.BoolVar(
		&leaderElectionEnable,
		"enable-leader-election",
		true,
		"Enable leader election for controller manager. Enabling this will ensure there is only one active controller manager.")
	flag.StringVar(
		&defaultConfig.LeaderElectionID,
		"leader-election-id",
		defaultConfig.LeaderElectionID,
		"Name of the resource to use as the locking resource when configuring leader election.")
	flag.StringVar(
		&defaultConfig.WatchNamespace,
		"watch-namespace",
		defaultConfig.WatchNamespace,
		"Namespace that the controller watches to reconcile VirtualMachine objects. If unspecified, the controller watches across all namespaces.")
	flag.IntVar(
		&defaultConfig.MaxConcurrentReconciles,
		"max-concurrent-reconciles",
		defaultConfig.MaxConcurrentReconciles,
		"The maximum number of allowed, concurrent reconciles.")
	flag.Parse()

	if defaultConfig.WatchNamespace != "" {
		setupLog.Info(
			"Watching objects only in namespace for reconciliation",
			"namespace", defaultConfig.WatchNamespace)
	}

	if profilerAddress != "" {
		setupLog.Info(
			"Profiler listening for requests",
			"profiler-address", profilerAddress)
		go runProfiler(setupLog, profilerAddress)
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		setupLog.Error(err, "problem building runtime scheme")
		os.Exit(1)
	}

	managerOpts := ctrlruntime.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress: metricsAddr,
		},
		HealthProbeBindAddress: healthAddr,
		LeaderElection:         leaderElectionEnable,
		LeaderElectionID:       defaultConfig.LeaderElectionID,
		WebhookServer: webhook.NewServer(webhook.Options{
			Port:    webhookPort,
			CertDir: webhookCertDir,
		}),
	}
	if defaultConfig.WatchNamespace != "" {
		managerOpts.Cache = cache.Options{
			DefaultNamespaces: map[string]cache.Config{
				defaultConfig.WatchNamespace: {},
			},
		}
	}

	setupLog.Info("creating controller manager")
	mgr, err := ctrlruntime.NewManager(ctrlruntime.GetConfigOrDie(), managerOpts)
	if err != nil {
		setupLog.Error(err, "problem creating controller manager")
		os.Exit(1)
	}

	signalCtx := ctrlsig.SetupSignalHandler()

	if err := record.AddToManager(signalCtx, mgr); err != nil {
		setupLog.Error(err, "problem adding event index")
		os.Exit(1)
	}
	recorder := record.New(
		mgr.GetClient(),
		ctrllog.Log.WithName("record"),
		record.Options{
			WaitAttempts: defaultConfig.EventWaitAttempts,
			WaitDelay:    defaultConfig.EventWaitDelay,
		})
	ipaClient := ipa.New(defaultConfig, ctrllog.Log.WithName("ipa"))
	keytabManager := keytab.NewManager(
		ipaClient,
		recorder,
		ctrllog.Log.WithName("keytab"),
		defaultConfig.KeytabTimeout,
		defaultConfig.KeytabInterval)
	if err := mgr.Add(keytabManager); err != nil {
		setupLog.Error(err, "problem adding keytab manager")
		os.Exit(1)
	}

	ctx := &pkgctx.ControllerManagerContext{
		Context:                 signalCtx,
		Namespace:               defaultConfig.PodNamespace,
		Name:                    defaultConfig.PodName,
		ServiceAccountName:      defaultConfig.PodServiceAccountName,
		LeaderElectionID:        defaultConfig.LeaderElectionID,
		WatchNamespace:          defaultConfig.WatchNamespace,
		MaxConcurrentReconciles: defaultConfig.MaxConcurrentReconciles,
		Config:                  defaultConfig,
		IPA:                     ipaClient,
		Keytab:                  keytabManager,
		Recorder:                recorder,
		Logger:                  ctrllog.Log.WithName("manager"),
	}

	if err := controllers.AddToManager(ctx, mgr); err != nil {
		setupLog.Error(err, "problem adding controllers to manager")
		os.Exit(1)
	}
	if err := webhooks.AddToManager(ctx, mgr); err != nil {
		setupLog.Error(err, "problem adding webhooks to manager")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to create health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("webhook", mgr.GetWebhookServer().StartedChecker()); err != nil {
		setupLog.Error(err, "unable to create readiness check")
		os.Exit(1)
	}

	setupLog.Info("starting controller manager")
	if err := mgr.Start(signalCtx); err != nil {
		setupLog.Error(err, "problem running controller manager")
		os.Exit(1)
	}
}

func runProfiler(logger klog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	srv := http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error(err, "problem running profiler server")
	}
}
