package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr error
	}{
		{
			name: "valid config",
			envVars: map[string]string{
				"GOOGLE_API_KEYS": "AIzaSy-test-key-1",
			},
			wantErr: nil,
		},
		{
			name:    "missing api keys",
			envVars: map[string]string{},
			wantErr: ErrMissingAPIKeys,
		},
		{
			name: "redis store without addr",
			envVars: map[string]string{
				"GOOGLE_API_KEYS": "AIzaSy-test-key-1",
				"QUOTA_STORE":     "redis",
			},
			wantErr: ErrMissingRedis,
		},
		{
			name: "postgres store without url",
			envVars: map[string]string{
				"GOOGLE_API_KEYS": "AIzaSy-test-key-1",
				"QUOTA_STORE":     "postgres",
			},
			wantErr: ErrMissingDB,
		},
		{
			name: "unknown store",
			envVars: map[string]string{
				"GOOGLE_API_KEYS": "AIzaSy-test-key-1",
				"QUOTA_STORE":     "etcd",
			},
			wantErr: ErrInvalidStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			defer clearEnvVars()

			cfg, err := Load()

			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error = %v", err)
				return
			}

			if cfg == nil {
				t.Error("Load() returned nil config")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	clearEnvVars()
	os.Setenv("GOOGLE_API_KEYS", "AIzaSy-test-key-1")
	defer clearEnvVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Quota.PerMinute != 15 {
		t.Errorf("Quota.PerMinute = %v, want 15", cfg.Quota.PerMinute)
	}
	if cfg.Quota.PerDay != 1500 {
		t.Errorf("Quota.PerDay = %v, want 1500", cfg.Quota.PerDay)
	}
	if cfg.Policy.MaxAttempts != 3 {
		t.Errorf("Policy.MaxAttempts = %v, want 3", cfg.Policy.MaxAttempts)
	}
	if cfg.Policy.WaitThreshold.Seconds() != 60 {
		t.Errorf("Policy.WaitThreshold = %v, want 60s", cfg.Policy.WaitThreshold)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Store.Type = %v, want memory", cfg.Store.Type)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %v, want info", cfg.Log.Level)
	}
	want := []string{"models/gemini-2.5-flash", "models/gemini-2.5-pro"}
	if len(cfg.Models.Candidates) != len(want) {
		t.Fatalf("Models.Candidates = %v, want %v", cfg.Models.Candidates, want)
	}
	for i := range want {
		if cfg.Models.Candidates[i] != want[i] {
			t.Errorf("Models.Candidates[%d] = %v, want %v", i, cfg.Models.Candidates[i], want[i])
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "key1", []string{"key1"}},
		{"several", "key1,key2,key3", []string{"key1", "key2", "key3"}},
		{"spaces and empties", " key1 , ,key2, ", []string{"key1", "key2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitList(tt.value)
			if len(got) != len(tt.want) {
				t.Fatalf("splitList(%q) = %v, want %v", tt.value, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("splitList(%q)[%d] = %v, want %v", tt.value, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		defaultVal int
		want       int
	}{
		{"valid int", "42", 10, 42},
		{"empty string", "", 10, 10},
		{"invalid int", "abc", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("TEST_INT", tt.envValue)
			defer os.Unsetenv("TEST_INT")

			got := getEnvIntOrDefault("TEST_INT", tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvIntOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloatOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		defaultVal float64
		want       float64
	}{
		{"valid float", "0.25", 0, 0.25},
		{"empty string", "", 1.5, 1.5},
		{"invalid float", "abc", 1.5, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("TEST_FLOAT", tt.envValue)
			defer os.Unsetenv("TEST_FLOAT")

			got := getEnvFloatOrDefault("TEST_FLOAT", tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvFloatOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func clearEnvVars() {
	envVars := []string{
		"GOOGLE_API_KEYS",
		"GEMINI_MODELS",
		"QUOTA_PER_MINUTE",
		"QUOTA_PER_DAY",
		"MAX_ATTEMPTS",
		"BACKOFF_BASE_SEC",
		"BACKOFF_CAP_SEC",
		"WAIT_THRESHOLD_SEC",
		"REQUEST_TIMEOUT_SEC",
		"SMOOTH_RPS",
		"BATCH_CONCURRENCY",
		"QUOTA_STORE",
		"REDIS_ADDR",
		"REDIS_PREFIX",
		"DATABASE_URL",
		"LOG_LEVEL",
		"METRICS_ADDR",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
