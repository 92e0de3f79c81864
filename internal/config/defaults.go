package config

import (
	"time"

	"github.com/spf13/viper"
)

// Transform task names of the standard pipeline.
const (
	TaskClean          = "clean"
	TaskAssetCopy      = "asset-copy"
	TaskStyleBuild     = "style-build"
	TaskScriptBuild    = "script-build"
	TaskTemplateRender = "template-render"
	TaskSpriteBuild    = "sprite-build"
	TaskImageOptimize  = "image-optimize"
	TaskWebpConvert    = "webp-convert"
	TaskSpriteOptimize = "sprite-optimize"
)

// Composite task names of the standard pipeline.
const (
	TaskAssets        = "assets"
	TaskImages        = "images"
	TaskPages         = "pages"
	TaskImagesRefresh = "images-refresh"
	TaskServe         = "serve"
	LifecycleBuild    = "build"
	LifecycleStart    = "start"
)

// Defaults returns the built-in configuration: the asset layout and tool
// chain the pipeline is designed around. Paths still contain the {source}
// and {build} tokens.
func Defaults() *Config {
	return &Config{
		Paths: PathsConfig{
			Source: "source",
			Build:  "build",
		},
		Server: ServerConfig{
			Host:       "localhost",
			Port:       8080,
			Open:       true,
			CORS:       true,
			LiveReload: true,
		},
		Build: BuildConfig{
			Workers: 4,
			Tasks:   defaultTasks(),
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
			Bindings: []BindingConfig{
				{Pattern: "{source}/sass/**/*.{scss,sass}", Task: TaskStyleBuild, Reload: ReloadInject},
				{Pattern: "{source}/**/*.pug", Task: TaskTemplateRender, Reload: ReloadFull},
				{Pattern: "{source}/img/**/*", Task: TaskImagesRefresh, Reload: ReloadFull},
				{Pattern: "{source}/js/**/*", Task: TaskScriptBuild, Reload: ReloadFull},
			},
		},
	}
}

func defaultTasks() map[string]TaskConfig {
	return map[string]TaskConfig{
		TaskClean: {
			Tool:   ToolClean,
			Output: "{build}",
		},
		TaskAssetCopy: {
			Tool: ToolCopy,
			Inputs: []string{
				"{source}/fonts/**/*.{woff,woff2}",
				"{source}/img/**/*",
				"!{source}/img/sprite/**",
			},
			Base:   "{source}",
			Output: "{build}",
		},
		TaskStyleBuild: {
			Tool:    ToolCommand,
			Inputs:  []string{"{source}/sass/style.scss"},
			Output:  "{build}/css",
			Command: "sass",
			Args:    []string{"--style=compressed", "--load-path=node_modules", "{in}", "{out}"},
			Mode:    ModePerFile,
			Ext:     ".css",
		},
		TaskSpriteBuild: {
			Tool:    ToolCommand,
			Inputs:  []string{"{source}/img/sprite/*.svg"},
			Output:  "{build}/img",
			Command: "svgstore",
			Args:    []string{"--inline", "-o", "{out}", "{inputs}"},
			Mode:    ModeBatch,
			Rename:  "sprite.svg",
		},
		TaskImageOptimize: {
			Tool:    ToolCommand,
			Inputs:  []string{"{build}/img/**/*.{png,jpg,svg,webp}"},
			Output:  "{build}/img",
			Command: "imagemin",
			Args:    []string{"{in}"},
			Mode:    ModePerFile,
			Stdout:  true,
		},
		TaskWebpConvert: {
			Tool:    ToolCommand,
			Inputs:  []string{"{build}/img/**/*.{png,jpg}"},
			Output:  "{build}/img",
			Command: "cwebp",
			Args:    []string{"-q", "90", "{in}", "-o", "{out}"},
			Mode:    ModePerFile,
			Ext:     ".webp",
		},
		TaskTemplateRender: {
			Tool:    ToolCommand,
			Inputs:  []string{"{source}/pug/pages/*.pug"},
			Output:  "{build}",
			Command: "pug",
			Args:    []string{"--pretty", "--out", "{outdir}", "{inputs}"},
			Mode:    ModeBatch,
		},
		TaskScriptBuild: {
			Tool:    ToolCommand,
			Inputs:  []string{"{source}/js/index.js"},
			Output:  "{build}/js",
			Command: "esbuild",
			Args:    []string{"{in}", "--bundle", "--minify", "--outfile={out}"},
			Mode:    ModePerFile,
		},
		TaskSpriteOptimize: {
			Tool:    ToolCommand,
			Inputs:  []string{"{source}/img/sprite/*.svg"},
			Output:  "{source}/img/sprite",
			Command: "svgo",
			Args:    []string{"{in}", "-o", "{out}"},
			Mode:    ModePerFile,
		},
	}
}

// SetDefaults registers every default value on v, key by key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("paths.source", d.Paths.Source)
	v.SetDefault("paths.build", d.Paths.Build)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("server.cors", d.Server.CORS)
	v.SetDefault("server.live_reload", d.Server.LiveReload)

	v.SetDefault("build.workers", d.Build.Workers)
	for name, task := range d.Build.Tasks {
		prefix := "build.tasks." + name + "."
		v.SetDefault(prefix+"tool", task.Tool)
		v.SetDefault(prefix+"output", task.Output)
		if len(task.Inputs) > 0 {
			v.SetDefault(prefix+"inputs", task.Inputs)
		}
		if task.Base != "" {
			v.SetDefault(prefix+"base", task.Base)
		}
		if task.Command != "" {
			v.SetDefault(prefix+"command", task.Command)
			v.SetDefault(prefix+"args", task.Args)
			v.SetDefault(prefix+"mode", task.Mode)
		}
		if task.Ext != "" {
			v.SetDefault(prefix+"ext", task.Ext)
		}
		if task.Rename != "" {
			v.SetDefault(prefix+"rename", task.Rename)
		}
		if task.Stdout {
			v.SetDefault(prefix+"stdout", task.Stdout)
		}
	}

	v.SetDefault("watch.debounce", d.Watch.Debounce)
	bindings := make([]map[string]interface{}, 0, len(d.Watch.Bindings))
	for _, b := range d.Watch.Bindings {
		bindings = append(bindings, map[string]interface{}{
			"pattern": b.Pattern,
			"task":    b.Task,
			"reload":  b.Reload,
		})
	}
	v.SetDefault("watch.bindings", bindings)
}
