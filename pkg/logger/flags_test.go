package logger

import "testing"

func TestToConfigParsesDebugList(t *testing.T) {
	tests := []struct {
		name      string
		debug     string
		wantCats  []DebugCategory
		wantLevel LogLevel
		wantErr   bool
	}{
		{"empty", "", nil, LevelInfo, false},
		{"single", "state", []DebugCategory{DebugState}, LevelDebug, false},
		{"multiple", "state,queue,events", []DebugCategory{DebugState, DebugQueue, DebugEvents}, LevelDebug, false},
		{"spaces and trailing comma", " queue , reconnect ,", []DebugCategory{DebugQueue, DebugReconnect}, LevelDebug, false},
		{"all expands", "all", []DebugCategory{DebugState, DebugQueue, DebugEvents, DebugReconnect}, LevelDebug, false},
		{"unknown category", "rtp", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Flags{LogLevel: "info", LogFormat: "text", Debug: tt.debug}
			cfg, err := f.ToConfig()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s", cfg.Level, tt.wantLevel)
			}
			for _, cat := range tt.wantCats {
				if !cfg.IsCategoryEnabled(cat) {
					t.Errorf("category %s not enabled", cat)
				}
			}
			if len(tt.wantCats) == 0 && cfg.IsDebugEnabled() {
				t.Error("no categories requested but debug is enabled")
			}
		})
	}
}

func TestFlagsString(t *testing.T) {
	f := &Flags{LogLevel: "warn", LogFormat: "json", LogFile: "out.log", Debug: "state,queue"}
	got := f.String()
	want := "level=warn format=json output=out.log debug=[state,queue]"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
