package app

import (
	"github.com/vk/mvnflow/internal/artifact"
	"github.com/vk/mvnflow/internal/cache"
	mvn "github.com/vk/mvnflow/internal/maven"
	"github.com/vk/mvnflow/internal/process"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/modules/artifacts"
	"github.com/vk/mvnflow/modules/checkout"
	"github.com/vk/mvnflow/modules/depcache"
	"github.com/vk/mvnflow/modules/env_vars"
	"github.com/vk/mvnflow/modules/files"
	"github.com/vk/mvnflow/modules/java"
	"github.com/vk/mvnflow/modules/maven"
	"github.com/vk/mvnflow/modules/print"
	"github.com/vk/mvnflow/modules/shell"
)

// moduleDeps are the shared services runners are built on.
type moduleDeps struct {
	runner    process.Runner
	mavenExe  string
	cache     *cache.Cache
	artifacts *artifact.Store
}

// coreModules is the definitive list of all modules that are compiled into
// the mvnflow binary.
func coreModules(d moduleDeps) []registry.Module {
	return []registry.Module{
		&checkout.Module{},
		&java.Module{},
		&maven.Module{Client: mvn.NewClient(d.runner, d.mavenExe)},
		&depcache.Module{Cache: d.cache},
		&artifacts.Module{Store: d.artifacts},
		&files.Module{},
		&shell.Module{Runner: d.runner},
		&print.Module{},
		&env_vars.Module{},
	}
}
