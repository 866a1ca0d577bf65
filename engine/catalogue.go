package engine

import (
	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/legacyapp"
	"github.com/chazu/retrofit/patch"
)

func at(class, member string) patch.Locator {
	return patch.Locator{Class: class, Member: member}
}

// CoreCatalogue returns the operations that route the reference target's
// extension points through the hook slot. Every fragment reaches the hooks
// via the entry class's _hooks() accessor.
func CoreCatalogue() []patch.Op {
	const (
		main    = legacyapp.Main
		menus   = legacyapp.Menus
		plugins = legacyapp.PluginLoader
		opener  = legacyapp.Opener
		image   = legacyapp.ImagePlus
		window  = legacyapp.ImageWindow
	)
	return []patch.Op{
		// Status reporting
		patch.InsertAtTop{Locator: at(main, "void showStatus(String status)"),
			Body: "app.Main._hooks().showStatus($1);"},
		patch.InsertAtTop{Locator: at(main, "void showProgress(double progress)"),
			Body: "app.Main._hooks().showProgress($1);"},
		patch.InsertAtTop{Locator: at(main, "void showProgress(int current, int total)"),
			Body: "app.Main._hooks().showProgress($1, $2);"},
		patch.InsertAtTop{Locator: at(main, "void log(String message)"),
			Body: "app.Main._hooks().log($1);"},
		// Added in later releases of the target.
		patch.InsertAtTop{Locator: at(main, "void showMessage(String title, String message)"),
			Body: `app.Main._hooks().log($1 + ": " + $2);`, Optional: true},

		// Branding
		patch.OverrideFieldRead{Locator: at(main, "String getTitle()"), Field: "appName",
			Body: "var name = app.Main._hooks().getAppName(); if (name == null) { $_ = $proceed(); } else { $_ = name; }"},
		patch.InsertAtTop{Locator: at(main, "String getIconPath()"),
			Body: "var url = app.Main._hooks().getIconURL(); if (url != null) { return url; }"},
		patch.AddMethod{Locator: at(main, ""),
			Decl: "static Object getContext() { return app.Main._hooks().getContext(); }"},

		// Lifecycle
		patch.InsertAtBottom{Locator: at(main, "void main(sys.List args)"),
			Body: "app.Main._hooks().initialized();"},
		patch.StubOut{Locator: at(main, ""), Members: []string{"void checkForUpdates()"}},
		patch.ReplaceCallSite{Locator: at(main, "void quit()"), Owner: main, Selector: "dispose",
			Body: "if (app.Main._hooks().disposing()) { $proceed(); }"},
		// Before the quit guard, whose early return must not dispose.
		patch.InsertAtBottom{Locator: at(main, "void quit()"),
			Body: "if (quitting) { app.Main._hooks().dispose(); }"},
		patch.InsertAtTop{Locator: at(main, "void quit()"),
			Body: "if (!app.Main._hooks().quit()) { return; }"},
		patch.InsertAtTop{Locator: at(main, "boolean closeAllWindows()"),
			Body: "if (!app.Main._hooks().interceptCloseAllWindows()) { return false; }"},
		patch.InsertAtTop{Locator: at(main, "void keyPressed(String key)"),
			Body: "if (app.Main._hooks().interceptKeyPressed($1)) { return; }"},
		patch.InsertAtTop{Locator: at(main, "void openEditor(String path)"),
			Body: "if (app.Main._hooks().openInEditor($1)) { return; }"},

		// Plugins
		patch.InsertAtTop{Locator: at(main, "Object runPlugIn(String className, String arg)"),
			Body: "var result = app.Main._hooks().interceptRunPlugIn($1, $2); if (result != null) { return result; }"},
		patch.AddExceptionHandler{Locator: at(main, "Object runPlugIn(String className, String arg)"),
			Exception: "sys.NoSuchMethodError",
			Body:      "if (app.Main._hooks().handleNoSuchMethodError($e)) { return null; }"},
		patch.InsertAtBottom{Locator: at(plugins, "<init>()"),
			Body: `app.Main._hooks().newPluginClassLoader($0);
var extra = app.Main._hooks().handleExtraPluginJars();
var i = 0;
while (i < extra.size()) {
	addPath(extra.get(i));
	i = i + 1;
}`},
		patch.InsertAtTop{Locator: at(plugins, "void readConfig(String dir)"),
			Body: "var generated = app.Main._hooks().autoGenerateConfigFile($1); if (generated != null) { config = generated; return; }"},
		patch.ReplaceCallSite{Locator: at(plugins, "sys.List scan(String dir)"), Selector: "sortJars",
			Body: "$_ = app.Main._hooks().addPluginDirectory(dir, $1);"},

		// Menus
		patch.InsertAtTop{Locator: at(menus, "void install()"),
			Body: "app.Main._hooks().addMenuItem(null, null);"},
		patch.InsertAtBottom{Locator: at(menus, "void install()"),
			Body: "app.Main._hooks().runAfterRefreshMenus();"},
		patch.InsertAtTop{Locator: at(menus, "void addItem(String path, String command)"),
			Body: "app.Main._hooks().addMenuItem($1, $2);"},

		// Files and images
		patch.InsertAtTop{Locator: at(opener, "app.ImagePlus open(String path)"),
			Body: "var r = app.Main._hooks().interceptFileOpen($1); if (r != null) { return r; }"},
		patch.OverrideFieldWrite{Locator: at(opener, "app.ImagePlus open(String path)"), Field: "app.Prefs.lastDir",
			Body: `app.Main._hooks().debug("last directory: " + $1); $proceed($1);`},
		patch.InsertAtTop{Locator: at(opener, "app.ImagePlus openImage(String path, int index)"),
			Body: "var r = app.Main._hooks().interceptOpenImage($1, $2); if (r != null) { return r; }"},
		patch.InsertAtTop{Locator: at(opener, "app.ImagePlus openRecent(String path)"),
			Body: "var r = app.Main._hooks().interceptOpenRecent($1); if (r != null) { return r; }"},
		patch.InsertAtTop{Locator: at(opener, "app.ImagePlus openDropped(String path)"),
			Body: "var r = app.Main._hooks().interceptDragAndDropFile($1); if (r != null) { return r; }"},
		patch.InsertAtBottom{Locator: at(image, "void show()"),
			Body: "app.Main._hooks().registerImage($0);"},
		patch.InsertAtTop{Locator: at(image, "void close()"),
			Body: "app.Main._hooks().unregisterImage($0);"},
		patch.InsertAtTop{Locator: at(window, "void close()"),
			Body: "app.Main._hooks().interceptImageWindowClose($0);"},
		patch.GuardDowncast{Locator: at(window, "app.StackWindow asStackWindow()"), Type: legacyapp.StackWindow},

		// Macros
		patch.AddCatch{Locator: at(legacyapp.Macro, "String run(String code, String arg)"), Exception: "sys.RuntimeException",
			Body: "app.Main._hooks().error($e); return null;"},
	}
}

// Catalogue returns the core catalogue as configured by cfg. Without a
// plugin class loader the plugin loader's constructor is left alone and
// plugins are expected on the boundary's own class path.
func Catalogue(cfg *hooks.Config) []patch.Op {
	ops := CoreCatalogue()
	if cfg == nil || !cfg.NoPluginClassLoader {
		return ops
	}
	ctor := at(legacyapp.PluginLoader, "<init>()")
	out := ops[:0]
	for _, op := range ops {
		if op.Target() != ctor {
			out = append(out, op)
		}
	}
	return out
}

// HeadlessPatches returns the operations that let the target's windows be
// used without a display: window classes stop reaching for the screen and
// no longer inherit from the toolkit frame.
func HeadlessPatches() []patch.Op {
	return []patch.Op{
		patch.StubOut{Locator: at(legacyapp.ImageWindow, ""), Members: []string{"void toFront()"}},
		patch.ReplaceSuperclass{Locator: at(legacyapp.ImageWindow, ""), Superclass: patch.RootClass},
	}
}
