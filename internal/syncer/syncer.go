// internal/syncer/syncer.go
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	conf "github.com/bartek5186/barsync/internal/config"
	"github.com/bartek5186/barsync/internal/importer"
	"github.com/rs/zerolog"
)

// KV - trwały magazyn znaczników przetworzonych plików (db.Handle)
type KV interface {
	GetKV(k string) (string, bool, error)
	SetKV(k, v string) error
}

// Syncer obserwuje katalog i zamienia wrzucone pliki w sesje importu.
type Syncer struct {
	log     zerolog.Logger     // logowanie
	svc     *importer.Service  // potok importu
	kv      KV                 // dedup po SHA-256
	env     importer.Env       // operator/ustawienia sesji z watch folderu
	mu      sync.Mutex         // ochrona sekcji krytycznych
	cfg     conf.WatchConfig   // aktualna konfiguracja
	running bool               // czy syncer działa
	cancel  context.CancelFunc // zatrzymanie pętli
	wg      sync.WaitGroup     // śledzi goroutines
	scans   uint64             // licznik przebiegów
}

func New(log zerolog.Logger, svc *importer.Service, kv KV, cfg conf.WatchConfig, env importer.Env) *Syncer {
	if env.Operator == "" {
		env.Operator = "watch"
	}
	return &Syncer{log: log, svc: svc, kv: kv, cfg: cfg, env: env}
}

func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if _, err := importer.ParseKind(s.cfg.Kind); err != nil {
		s.mu.Unlock()
		return err
	}
	dir := expandHome(s.cfg.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.scans = 0
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info().Str("dir", dir).Msg("watch: start")
	go s.loop(ctx)
	return nil
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("watch: stop")
}

func (s *Syncer) UpdateConfig(cfg conf.WatchConfig) {
	s.mu.Lock()
	s.cfg = cfg
	isRunning := s.running
	s.mu.Unlock()

	s.log.Info().Msg("watch: config zaktualizowany")

	if isRunning {
		// restart, żeby pętla wzięła nowy katalog/interwał
		s.Stop()
		if err := s.Start(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("watch: restart po zmianie configu nieudany")
		}
	}
}

func (s *Syncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Syncer) Scans() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

func (s *Syncer) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.PollSec > 0 {
		return time.Duration(s.cfg.PollSec) * time.Second
	}
	return 10 * time.Second
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	// pierwszy przebieg od razu
	s.ScanOnce(ctx)

	cur := s.interval()
	ticker := time.NewTicker(cur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("watch: koniec pętli")
			return
		case <-ticker.C:
			s.ScanOnce(ctx)
			if next := s.interval(); next != cur {
				cur = next
				ticker.Reset(cur)
			}
		}
	}
}

// znaczniki w KV: watch:<sha> -> stan; retry:<n> = n nieudanych przebiegów
const (
	markDone     = "done"
	markPreview  = "previewing"
	markRejected = "rejected"
	markFailed   = "failed"
	retryPrefix  = "retry:"

	defaultMaxAttempts = 3
)

func markKey(sha string) string { return "watch:" + sha }

func terminal(mark string) bool {
	switch mark {
	case markDone, markPreview, markRejected, markFailed:
		return true
	}
	return false
}

// attempts odczytuje licznik z retry:<n>; starsze znaczniki (idle, partially_failed) to jedna próba
func attempts(mark string) int {
	if rest, ok := strings.CutPrefix(mark, retryPrefix); ok {
		if n, err := strconv.Atoi(rest); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func (s *Syncer) maxAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return defaultMaxAttempts
}

// ScanOnce przetwarza nowe pliki w katalogu i zwraca liczbę uruchomionych sesji.
func (s *Syncer) ScanOnce(ctx context.Context) int {
	s.mu.Lock()
	s.scans++
	cfg := s.cfg
	s.mu.Unlock()

	kind, err := importer.ParseKind(cfg.Kind)
	if err != nil {
		s.log.Error().Err(err).Msg("watch: zły rodzaj importu")
		return 0
	}
	dir := expandHome(cfg.Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("nie mogę odczytać katalogu")
		return 0
	}

	started := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return started
		}
		name := e.Name()
		if e.IsDir() || !watched(name) {
			continue
		}
		full := filepath.Join(dir, name)
		data, err := os.ReadFile(full)
		if err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("odczyt pliku nieudany")
			continue
		}
		sum := sha256.Sum256(data)
		sha := hex.EncodeToString(sum[:])

		prev, seen, err := s.kv.GetKV(markKey(sha))
		if err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("watch: odczyt znacznika nieudany")
			continue
		}
		if seen && terminal(prev) {
			s.log.Debug().Str("file", name).Str("mark", prev).Msg("plik już był - pomijam")
			continue
		}
		tries := 0
		if seen {
			tries = attempts(prev)
			s.log.Warn().Str("file", name).Str("mark", prev).Int("attempt", tries+1).Msg("plik istnieje, ale nie DONE - ponawiam")
		}

		started++
		mark := s.process(ctx, kind, cfg.AutoConfirm, name, data)
		if !terminal(mark) {
			tries++
			if tries >= s.maxAttempts() {
				s.log.Error().Str("file", name).Str("state", mark).Int("attempts", tries).Msg("plik porzucony po kolejnych nieudanych próbach")
				mark = markFailed
			} else {
				mark = retryPrefix + strconv.Itoa(tries)
			}
		}
		if err := s.kv.SetKV(markKey(sha), mark); err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("watch: zapis znacznika nieudany")
		}
	}
	return started
}

func (s *Syncer) process(ctx context.Context, kind importer.Kind, autoConfirm bool, name string, data []byte) string {
	in := importer.Input{Name: name, Data: data}
	if !autoConfirm {
		sess, err := s.svc.NewSession(kind, s.env)
		if err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("watch: sesja nieudana")
			return string(importer.StateIdle)
		}
		if _, err := sess.Preview(ctx, in); err != nil {
			return s.failed(name, err)
		}
		s.log.Info().Str("file", name).Str("session", sess.ID).Msg("podgląd gotowy, czeka na potwierdzenie")
		return markPreview
	}

	sess, err := s.svc.Run(ctx, kind, s.env, in, nil)
	if err != nil && (sess == nil || sess.State() == importer.StateIdle) {
		return s.failed(name, err)
	}
	if err != nil {
		s.log.Error().Err(err).Str("file", name).Str("session", sess.ID).Msg("zapis importu nieudany")
	}
	st := sess.State()
	if st == importer.StateDone {
		s.log.Info().Str("file", name).Str("session", sess.ID).Msg("przetworzono OK")
		return markDone
	}
	return string(st)
}

// failed - błędy wejścia nie znikną przy kolejnym przebiegu, pozostałe ponawiamy
func (s *Syncer) failed(name string, err error) string {
	var ie *importer.InputError
	if errors.As(err, &ie) {
		s.log.Error().Err(err).Str("file", name).Msg("plik odrzucony")
		return markRejected
	}
	s.log.Error().Err(err).Str("file", name).Msg("błąd przetwarzania pliku")
	return string(importer.StateIdle)
}

func watched(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt", ".xlsx":
		return true
	}
	return false
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
