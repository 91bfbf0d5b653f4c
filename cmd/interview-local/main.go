package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/vango-go/vai-interview/internal/dotenv"
	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/providers/gemini"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/store"
)

type localConfig struct {
	Candidate   live.Candidate
	Voice       string
	LiveModel   string
	ScoreModel  string
	DatabaseURL string
	ReportOut   string
	Interview   live.Config
}

// localDeps are the pieces runInterview drives. Tests swap in fakes.
type localDeps struct {
	dialer   live.Dialer
	scorer   report.Scorer
	reports  store.Store
	mic      io.Reader
	player   pcmPlayer
	commands io.Reader
	out      io.Writer
	logger   *slog.Logger
	// interrupts delivers Ctrl-C presses; nil disables them.
	interrupts <-chan os.Signal
}

type commandKind int

const (
	commandUnknown commandKind = iota
	commandEnd
	commandViolation
	commandHelp
)

type command struct {
	kind      commandKind
	violation live.ViolationKind
}

// parseCommand maps a console line to an interview action. Violations are
// typed as "/tab_hidden", "/copy" and so on.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}
	switch line {
	case "/end", "/quit", "/exit":
		return command{kind: commandEnd}, true
	case "/help", "?":
		return command{kind: commandHelp}, true
	}
	if strings.HasPrefix(line, "/") {
		if kind, ok := live.ParseViolationKind(strings.TrimPrefix(line, "/")); ok {
			return command{kind: commandViolation, violation: kind}, true
		}
	}
	return command{kind: commandUnknown}, true
}

// renderEvent writes the console form of an interview event. Speaking
// levels are too chatty for a terminal and are skipped.
func renderEvent(w io.Writer, ev live.Event, printed int) int {
	switch e := ev.(type) {
	case *live.StatusEvent:
		if e.Err != nil {
			fmt.Fprintf(w, "[status] %s: %v\n", e.Status, e.Err)
		} else {
			fmt.Fprintf(w, "[status] %s\n", e.Status)
		}
	case *live.TranscriptEvent:
		// Lines only grow; the last one may still be growing.
		if printed > len(e.Lines) {
			printed = 0
		}
		for i := printed; i < len(e.Lines)-1; i++ {
			fmt.Fprintf(w, "[%s] %s\n", e.Lines[i].Speaker.Label(), e.Lines[i].Text)
			printed = i + 1
		}
	case *live.TimeRemainingEvent:
		rem := e.Remaining.Round(time.Second)
		if rem%time.Minute == 0 || rem <= 10*time.Second {
			fmt.Fprintf(w, "[time] %s remaining\n", rem)
		}
	case *live.NudgeEvent:
		fmt.Fprintf(w, "[nudge %d] %s\n", e.Strike, e.Text)
	case *live.WarningEvent:
		fmt.Fprintf(w, "[warning %d] %s\n", e.Strikes, e.Text)
	case *live.TerminatingEvent:
		fmt.Fprintf(w, "[ending] %s\n", e.Reason)
	case *live.CompletedEvent:
		for i := printed; i < len(e.Lines); i++ {
			fmt.Fprintf(w, "[%s] %s\n", e.Lines[i].Speaker.Label(), e.Lines[i].Text)
		}
		printed = len(e.Lines)
	}
	return printed
}

func writeReportSummary(w io.Writer, r report.Report) {
	fmt.Fprintf(w, "\nReport %s\n", r.ID)
	fmt.Fprintf(w, "Candidate: %s (%s)\n", r.Candidate.Name, r.Candidate.Role)
	fmt.Fprintf(w, "Status: %s\n", r.Status)
	if r.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", r.Reason)
	}
	if r.Evaluation == nil {
		return
	}
	fmt.Fprintf(w, "Rating: %d/10\n", r.Evaluation.Rating)
	if r.Evaluation.Feedback != "" {
		fmt.Fprintf(w, "Feedback: %s\n", r.Evaluation.Feedback)
	}
	for i, q := range r.Evaluation.Questions {
		fmt.Fprintf(w, "  Q%d (%d/10) %s\n", i+1, q.Rating, q.Question)
	}
}

func runInterview(ctx context.Context, cfg localConfig, deps localDeps) (report.Report, error) {
	if deps.dialer == nil {
		return report.Report{}, errors.New("missing dialer")
	}
	if deps.player == nil {
		return report.Report{}, errors.New("missing player")
	}
	if deps.out == nil {
		deps.out = os.Stdout
	}
	if deps.logger == nil {
		deps.logger = slog.Default()
	}

	sink := newPlayerSink(deps.player, playbackSampleRateHz)
	sessionID := "local_" + uuid.NewString()
	sess, err := live.New(live.Dependencies{
		Logger:    deps.logger,
		Dialer:    deps.dialer,
		Sink:      sink,
		Candidate: cfg.Candidate,
		Voice:     cfg.Voice,
		SessionID: sessionID,
		Config:    cfg.Interview,
	})
	if err != nil {
		_ = sink.Close()
		return report.Report{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(runCtx) }()

	var wg sync.WaitGroup
	if deps.mic != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pumpMic(runCtx, deps.mic, sess, deps.logger)
		}()
	}
	if deps.commands != nil {
		go readCommands(deps.commands, sess, deps.out)
	}

	var completed *live.CompletedEvent
	printed := 0
	events := sess.Events()
	interrupts := deps.interrupts
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			printed = renderEvent(deps.out, ev, printed)
			if c, ok := ev.(*live.CompletedEvent); ok {
				completed = c
			}
		case <-interrupts:
			// First Ctrl-C ends the interview cleanly; a second one aborts.
			if sess.Terminate(live.ReasonCandidateEnded) {
				fmt.Fprintln(deps.out, "ending interview, press Ctrl-C again to abort")
				continue
			}
			cancel()
			interrupts = nil
		}
	}
	cancel()
	wg.Wait()
	_ = sink.Close()

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return report.Report{}, err
	}
	if completed == nil {
		return report.Report{}, errors.New("interview aborted before completion")
	}

	scoreCtx, scoreCancel := context.WithTimeout(context.WithoutCancel(ctx), 60*time.Second)
	defer scoreCancel()
	rep, err := report.Finalize(scoreCtx, deps.scorer, cfg.Candidate, completed.Transcript, completed.Reason, report.Options{SessionID: sessionID})
	if err != nil {
		return report.Report{}, fmt.Errorf("score interview: %w", err)
	}
	if deps.reports != nil {
		if err := deps.reports.SaveReport(scoreCtx, rep); err != nil {
			return rep, fmt.Errorf("save report: %w", err)
		}
	}
	return rep, nil
}

func pumpMic(ctx context.Context, mic io.Reader, sess *live.Session, logger *slog.Logger) {
	// 20ms of 16kHz mono PCM16.
	buf := make([]byte, 640)
	for ctx.Err() == nil {
		n, err := io.ReadFull(mic, buf)
		if n > 0 {
			sess.PushFrame(live.PCM16ToFloat32(buf[:n-n%2]))
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Warn("mic read failed", "error", err)
			}
			return
		}
	}
}

func readCommands(r io.Reader, sess *live.Session, out io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, ok := parseCommand(scanner.Text())
		if !ok {
			continue
		}
		switch cmd.kind {
		case commandEnd:
			sess.Terminate(live.ReasonCandidateEnded)
		case commandViolation:
			sess.ReportViolation(cmd.violation)
		case commandHelp, commandUnknown:
			fmt.Fprintln(out, "commands: /end, /tab_hidden, /window_blur, /context_menu, /copy, /paste")
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFlags(args []string, stderr io.Writer) (localConfig, string, string, error) {
	fs := flag.NewFlagSet("interview-local", flag.ContinueOnError)
	fs.SetOutput(stderr)

	name := fs.String("name", "", "candidate name (required)")
	role := fs.String("role", "", "role being interviewed for (required)")
	experience := fs.String("experience", "", "candidate experience summary")
	skills := fs.String("skills", "", "comma separated skills")
	job := fs.String("job", "", "job description context")
	language := fs.String("language", "", "interview language")
	duration := fs.Duration("duration", 10*time.Minute, "interview length")
	questions := fs.Int("questions", 5, "number of questions")
	voice := fs.String("voice", gemini.DefaultVoice, "interviewer voice")
	liveModel := fs.String("live-model", gemini.DefaultLiveModel, "Gemini live model")
	scoreModel := fs.String("scoring-model", gemini.DefaultScoringModel, "Gemini scoring model")
	databaseURL := fs.String("database-url", "", "Postgres URL to store the report in")
	reportOut := fs.String("report-out", "", "write the report JSON to this file")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return localConfig{}, "", "", err
	}
	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*role) == "" {
		return localConfig{}, "", "", errors.New("--name and --role are required")
	}
	if *duration <= 0 {
		return localConfig{}, "", "", errors.New("--duration must be > 0")
	}

	icfg := live.DefaultConfig()
	icfg.Duration = *duration
	icfg.CaptureSampleRate = micSampleRateHz
	icfg.ReceiveSampleRate = playbackSampleRateHz
	if *questions > 0 {
		icfg.Prompts.QuestionCount = *questions
	}

	return localConfig{
		Candidate: live.Candidate{
			Name:       strings.TrimSpace(*name),
			Role:       strings.TrimSpace(*role),
			Experience: strings.TrimSpace(*experience),
			Skills:     splitList(*skills),
			JobContext: strings.TrimSpace(*job),
			Language:   strings.TrimSpace(*language),
		},
		Voice:       *voice,
		LiveModel:   *liveModel,
		ScoreModel:  *scoreModel,
		DatabaseURL: *databaseURL,
		ReportOut:   *reportOut,
		Interview:   icfg,
	}, *envFile, *logLevel, nil
}

func writeReportFile(path string, r report.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, envFile, logLevel, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "interview-local: %v\n", err)
		return 2
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		fmt.Fprintf(stderr, "interview-local: invalid log level %q\n", logLevel)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl}))

	if err := dotenv.LoadFiles(envFile); err != nil {
		fmt.Fprintf(stderr, "interview-local: %v\n", err)
		return 1
	}
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		fmt.Fprintln(stderr, "interview-local: GEMINI_API_KEY must be set")
		return 1
	}

	provider := gemini.New(apiKey,
		gemini.WithLogger(logger),
		gemini.WithLiveModel(cfg.LiveModel),
		gemini.WithScoringModel(cfg.ScoreModel),
		gemini.WithVoice(cfg.Voice),
	)
	scorer, err := provider.NewScorer(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "interview-local: create scorer: %v\n", err)
		return 1
	}

	var reports store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(stderr, "interview-local: open report store: %v\n", err)
			return 1
		}
		defer pg.Close()
		reports = pg
	}

	mic, err := newFFmpegMicCapture()
	if err != nil {
		fmt.Fprintf(stderr, "interview-local: %v\n", err)
		return 1
	}
	defer mic.Close()

	player, err := newFFplayPCMPlayer()
	if err != nil {
		fmt.Fprintf(stderr, "interview-local: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Fprintf(stdout, "Interviewing %s for %s. Type /help for commands.\n", cfg.Candidate.Name, cfg.Candidate.Role)
	rep, err := runInterview(ctx, cfg, localDeps{
		dialer:     provider.LiveDialer(),
		scorer:     scorer,
		reports:    reports,
		mic:        mic,
		player:     player,
		commands:   stdin,
		out:        stdout,
		logger:     logger,
		interrupts: sigCh,
	})
	if err != nil && rep.ID == "" {
		fmt.Fprintf(stderr, "interview-local: %v\n", err)
		return 1
	}
	writeReportSummary(stdout, rep)
	if cfg.ReportOut != "" {
		if werr := writeReportFile(cfg.ReportOut, rep); werr != nil {
			fmt.Fprintf(stderr, "interview-local: write report: %v\n", werr)
			return 1
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "interview-local: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
