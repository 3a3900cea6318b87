// The fscp command copies and moves files and directories while showing a
// colorful progress bar, built on top of the fsmore library. It also
// supports SFTP remote file copies in the style of scp, for the one thing
// fsmore's host-native core can't do on its own.
//
// The architecture is a mix of classical goroutines and the bubbletea-style
// "Elm architecture": the actual copy (whether driven by fsmore locally or
// by remotecopy across SFTP) runs in a background goroutine and sends
// updates to the main program, because routing a deep recursive copy
// through Update directly would make it the bottleneck.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rhogenson/container/deque"

	"github.com/rhogenson/fsmore"
	"github.com/rhogenson/fsmore/internal/remotecopy"
	"github.com/rhogenson/fsmore/internal/remotefs/osfs"
	"github.com/rhogenson/fsmore/internal/remotefs/sftpfs"
)

var (
	force = flag.Bool("f", false, "overwrite existing destination items instead of failing")
	move  = flag.Bool("m", false, "move instead of copy, removing the source once the destination is in place")
)

type measurement struct {
	t time.Time
	i int64
}

type model struct {
	progress progress.Model

	// max is the total bytes (plus fudge factor) to copy.
	max int64
	// current holds the current number of copied bytes.
	current atomic.Int64
	// Every 500 milliseconds, the current progress is appended to
	// measurements for calculating ETA.
	measurements deque.Deque[measurement]
	// copyingFiles holds the files currently being copied. Keys are
	// source paths and values are the corresponding destination paths.
	copyingFiles map[string]string
	// copyingFile is an arbitrary entry from copyingFiles that we're
	// currently showing to the user. Tracked in the state so that it
	// doesn't change every time we update the view.
	copyingFile string
	// eta is the estimated time to completion, or -1 if we don't have
	// enough samples.
	eta time.Duration
	// errs are the errors encountered during operation.
	errs []string
	// done indicates whether the copy is done and we're just waiting
	// for the progress bar to finish animating.
	done bool
}

type (
	// tickMsg is sent every 100 milliseconds.
	tickMsg time.Time

	// maxMsg sets the total bytes to copy. A remote copy sends it once,
	// after the source tree(s) have been sized up; a local copy sends it
	// for each source file and with every directory progress update.
	maxMsg int64
	// fileStartMsg is sent whenever a file starts copying.
	fileStartMsg struct{ from, to string }
	// fileDoneMsg is sent whenever a file finishes copying, successfully
	// or not.
	fileDoneMsg struct {
		name string
		err  error
	}
	// doneMsg is sent when everything has finished copying.
	doneMsg struct{}
)

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Init() tea.Cmd {
	return tick()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case maxMsg:
		m.max = int64(msg)
	case fileStartMsg:
		m.copyingFiles[msg.from] = msg.to
		if m.copyingFile == "" {
			m.copyingFile = msg.from
		}
	case fileDoneMsg:
		delete(m.copyingFiles, msg.name)
		if m.copyingFile == msg.name {
			m.copyingFile = ""
			for name := range m.copyingFiles {
				m.copyingFile = name
				break
			}
		}
		if msg.err != nil {
			m.errs = append(m.errs, msg.err.Error())
		}
	case doneMsg:
		m.done = true
		var cmd tea.Cmd
		if m.max > 0 {
			cmd = m.progress.SetPercent(float64(m.current.Load()) / float64(m.max))
		}
		if !m.progress.IsAnimating() {
			return m, tea.Quit
		}
		return m, cmd

	case tickMsg:
		n := m.current.Load()
		now := time.Time(msg)

		if m.measurements.Len() == 0 || now.Sub(m.measurements.At(m.measurements.Len()-1).t) > 500*time.Millisecond {
			for m.measurements.Len() > 1 && now.Sub(m.measurements.At(0).t) > 2*time.Minute {
				m.measurements.PopFront()
			}
			m.measurements.PushBack(measurement{now, n})

			if m.max > 0 {
				first := m.measurements.At(0)
				if delta := n - first.i; delta != 0 {
					deltaT := now.Sub(first.t)
					m.eta = time.Duration(float64(m.max-n) / float64(delta) * float64(deltaT))
				}
			}
		}

		cmds := []tea.Cmd{tick()}
		if m.max > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(n)/float64(m.max)))
		}
		return m, tea.Batch(cmds...)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		if m.done && !m.progress.IsAnimating() {
			return m, tea.Quit
		}
		return m, cmd
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - 4
	}
	return m, nil
}

var warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render

func (m *model) View() string {
	copying := ""
	if m.copyingFile != "" {
		copying = m.copyingFile + " -> " + m.copyingFiles[m.copyingFile]
	}
	etaStr := "calculating..."
	if m.eta >= 0 {
		etaStr = m.eta.Round(time.Second).String()
	}
	return "\n" +
		"  " + copying + "\n" +
		"  " + m.progress.View() + "\n" +
		"  " + "ETA: " + etaStr + "\n\n" +
		warningStyle(strings.Join(m.errs, "\n")) + "\n"
}

// progressUpdater adapts the bubbletea program into the [remotecopy.Progress]
// interface.
type progressUpdater struct {
	p       *tea.Program
	current *atomic.Int64
}

func (pu *progressUpdater) Max(n int64) { pu.p.Send(maxMsg(n)) }

func (pu *progressUpdater) Progress(n int64) { pu.current.Add(n) }

func (pu *progressUpdater) FileStart(from, to string) { pu.p.Send(fileStartMsg{from, to}) }

func (pu *progressUpdater) FileDone(name string, err error) { pu.p.Send(fileDoneMsg{name, err}) }

// splitHostPath splits an scp-style target into host and path, e.g.
// user@host:/path/. If the user wants to copy a local file that has a colon
// in it, they can qualify it with the directory name, e.g.
// ./file:with:colons.
func splitHostPath(target string) (string, string) {
	i := strings.IndexAny(target, ":/")
	if i < 0 || target[i] == '/' {
		return "", target
	}
	return target[:i], target[i+1:]
}

func toFSPath(target string, sftpHosts map[string]*sftpfs.FS) remotecopy.FSPath {
	host, path := splitHostPath(target)
	if host == "" {
		return remotecopy.FSPath{FS: osfs.FS{}, Path: path}
	}
	if path == "" {
		path = "."
	}
	return remotecopy.FSPath{FS: sftpHosts[host], Path: path}
}

// runLocal drives a single local source through fsmore directly, so a
// plain local-to-local invocation gets fsmore's richer collision handling
// (and, for a move, the rename fast path) instead of remotecopy's flat
// overwrite/skip switches.
func runLocal(pu *progressUpdater, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	target := dst
	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
		target = dst + string(os.PathSeparator) + filepathBase(src)
	}

	if !info.IsDir() {
		pu.Max(info.Size() + 1)
		pu.FileStart(src, target)
		fileOpts := fsmore.FileCopyOptions{OverwriteExisting: *force}
		var err error
		if *move {
			_, err = fsmore.MoveFileWithProgress(src, target, fsmore.FileMoveOptions(fileOpts), func(p fsmore.FileProgress) {
				pu.Progress(int64(p.BytesFinished) - pu.current.Load())
			})
		} else {
			_, err = fsmore.CopyFileWithProgress(src, target, fileOpts, func(p fsmore.FileProgress) {
				pu.Progress(int64(p.BytesFinished) - pu.current.Load())
			})
		}
		pu.FileDone(src, err)
		return err
	}

	rule := fsmore.TargetDirectoryRule{Kind: fsmore.AllowNonEmpty, OverwriteExistingFiles: *force, OverwriteExistingSubdirectories: *force}
	callback := func(p fsmore.DirectoryCopyProgress) {
		pu.Max(int64(p.BytesTotal) + 1)
		pu.current.Store(int64(p.BytesFinished))
		if p.CurrentOperation.Kind == fsmore.CopyingFile {
			pu.p.Send(fileStartMsg{p.CurrentOperation.Path, p.CurrentOperation.Path})
		}
	}
	dirOpts := fsmore.DirectoryCopyOptions{TargetDirectoryRule: rule}
	var err error
	if *move {
		_, err = fsmore.MoveDirectoryWithProgress(src, target, fsmore.DirectoryMoveOptions(dirOpts), callback)
	} else {
		_, err = fsmore.CopyDirectoryWithProgress(src, target, dirOpts, callback)
	}
	return err
}

func filepathBase(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == os.PathSeparator {
			return p[i+1:]
		}
	}
	return p
}

func run() error {
	args := flag.Args()
	if len(args) < 2 {
		return errors.New("usage error")
	}
	srcTargets, dstTarget := args[:len(args)-1], args[len(args)-1]

	anyRemote := false
	for _, tgt := range append(append([]string{}, srcTargets...), dstTarget) {
		if host, _ := splitHostPath(tgt); host != "" {
			anyRemote = true
		}
	}

	m := &model{
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		copyingFiles: make(map[string]string),
		eta:          -1,
	}
	p := tea.NewProgram(m, tea.WithInput(nil), tea.WithOutput(os.Stderr))
	pu := &progressUpdater{p, &m.current}

	go func() {
		if anyRemote {
			sftpHosts := make(map[string]*sftpfs.FS)
			for _, tgt := range append(append([]string{}, srcTargets...), dstTarget) {
				host, _ := splitHostPath(tgt)
				if host == "" || sftpHosts[host] != nil {
					continue
				}
				fs, err := sftpfs.Dial(host)
				if err != nil {
					pu.FileDone(tgt, err)
					continue
				}
				defer fs.Close()
				sftpHosts[host] = fs
			}
			srcs := make([]remotecopy.FSPath, len(srcTargets))
			for i, tgt := range srcTargets {
				srcs[i] = toFSPath(tgt, sftpHosts)
			}
			dst := toFSPath(dstTarget, sftpHosts)
			remotecopy.Copy(pu, srcs, dst, remotecopy.Policy{OverwriteExisting: *force})
		} else {
			for _, src := range srcTargets {
				if err := runLocal(pu, src, dstTarget); err != nil {
					pu.FileDone(src, err)
				}
			}
		}
		p.Send(doneMsg{})
	}()
	if _, err := p.Run(); err != nil {
		return err
	}
	if len(m.errs) > 0 {
		return errors.New("exiting with one or more errors")
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fscp [OPTION]... SOURCE TARGET
  or:  fscp [OPTION]... SOURCE... TARGET

Copy (or, with -m, move) SOURCE to TARGET, or multiple SOURCE(s) into a
directory TARGET. Uses SFTP for remote file transfers.

fscp will ask for passwords or passphrases if they are needed for
authentication.

The source and target may be specified as a local pathname or a remote
host with optional path in the form [user@]host:[path]. Local file names
can be made explicit using absolute or relative pathnames to avoid fscp
treating file names containing `+"`"+`:' as host specifiers.

Options:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
