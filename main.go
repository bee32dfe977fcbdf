package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"coredb/pkg/engine/buffer"
	"coredb/pkg/engine/hashindex"
	"coredb/pkg/engine/txnlock"
	"coredb/pkg/logging"
	"coredb/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Configuration struct {
	DataDir        string
	DataFile       string
	PoolSize       int
	BucketCapacity int
	DemoMode       bool
}

func main() {
	config := parseArguments()
	showSplashScreen()

	logging.InitDefault()

	engine, err := initializeEngine(config)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer engine.disk.Shutdown()

	if config.DemoMode {
		go runDemoMode(engine)
	}

	if err := startInspector(engine); err != nil {
		log.Fatalf("Failed to start inspector: %v", err)
	}
}

// coreEngine bundles what a running instance of this storage core needs:
// the disk and buffer pool backing every page, the hash index built on
// top of it, and the lock registry and manager guarding row access.
type coreEngine struct {
	disk     *buffer.FileDisk
	pool     *buffer.Pool
	index    *hashindex.ExtendibleHashTable[string, int64]
	registry *txnlock.Registry
	manager  *txnlock.Manager
}

// parseArguments processes command-line flags
func parseArguments() Configuration {
	var config Configuration

	flag.StringVar(&config.DataDir, "data", "./data", "Data directory path")
	flag.StringVar(&config.DataFile, "file", "coredb.pages", "Backing page file name")
	flag.IntVar(&config.PoolSize, "pool-size", 64, "Buffer pool frame count")
	flag.IntVar(&config.BucketCapacity, "bucket-capacity", hashindex.DefaultBucketCapacity, "Hash index bucket capacity")
	flag.BoolVar(&config.DemoMode, "demo", false, "Generate background insert/remove/lock activity to watch")

	flag.Parse()

	return config
}

// showSplashScreen displays an attractive welcome screen
func showSplashScreen() {
	splash := `
╔══════════════════════════════════════════════════════════════╗
║                                                              ║
║        ███████╗████████╗ ██████╗ ██████╗ ███████╗            ║
║        ██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗██╔════╝            ║
║        ███████╗   ██║   ██║   ██║██████╔╝█████╗              ║
║        ╚════██║   ██║   ██║   ██║██╔══██╗██╔══╝              ║
║        ███████║   ██║   ╚██████╔╝██║  ██║███████╗            ║
║        ╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚══════╝            ║
║                                                              ║
║                   ███╗   ███╗██╗   ██╗                       ║
║                   ████╗ ████║╚██╗ ██╔╝                       ║
║                   ██╔████╔██║ ╚████╔╝                        ║
║                   ██║╚██╔╝██║  ╚██╔╝                         ║
║                   ██║ ╚═╝ ██║   ██║                          ║
║                   ╚═╝     ╚═╝   ╚═╝                          ║
║                                                              ║
║           A buffer pool, hash index, and lock table          ║
║                       With Love in Go 🚀                     ║
╚══════════════════════════════════════════════════════════════╝
`

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)

	fmt.Println(style.Render(splash))
	time.Sleep(1 * time.Second)
}

// initializeEngine creates the on-disk buffer pool, the hash index it
// backs, and a lock manager tracking transactions against it.
func initializeEngine(config Configuration) (*coreEngine, error) {
	fmt.Printf("🔧 Initializing storage core in %q...\n", config.DataDir)

	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	disk, err := buffer.NewFileDisk(filepath.Join(config.DataDir, config.DataFile))
	if err != nil {
		return nil, err
	}

	pool := buffer.New(config.PoolSize, disk)
	index, err := hashindex.New[string, int64](pool, hashindex.HashString, config.BucketCapacity)
	if err != nil {
		disk.Shutdown()
		return nil, fmt.Errorf("failed to build hash index: %v", err)
	}

	registry := txnlock.NewRegistry()
	manager := txnlock.NewManager(registry)

	fmt.Println("✅ Storage core initialized successfully!")
	return &coreEngine{disk: disk, pool: pool, index: index, registry: registry, manager: manager}, nil
}

// startInspector launches the Bubble Tea inspector over a running engine.
func startInspector(engine *coreEngine) error {
	model := ui.NewModel(engine.pool, engine.index, engine.registry)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %v", err)
	}

	return nil
}

// runDemoMode drives a handful of worker goroutines that insert, remove,
// and lock rows continuously, so the inspector has something to show.
func runDemoMode(engine *coreEngine) {
	for worker := 0; worker < 4; worker++ {
		worker := worker
		go func() {
			rng := rand.New(rand.NewSource(int64(worker) + 1))
			for i := 0; ; i++ {
				key := fmt.Sprintf("demo-%d-%d", worker, i%500)
				if _, err := engine.index.Insert(key, int64(i)); err != nil {
					logging.Error("demo insert failed", "error", err.Error())
				}
				if rng.Intn(3) == 0 {
					engine.index.Remove(key, int64(i))
				}

				txn := txnlock.NewTransaction(txnlock.RepeatableRead)
				engine.registry.Track(txn)
				rid := txnlock.RID{Page: int64(rng.Intn(64)), Slot: int32(rng.Intn(8))}
				if err := engine.manager.LockShared(txn, rid); err == nil {
					time.Sleep(5 * time.Millisecond)
					engine.manager.Unlock(txn, rid)
				}
				txn.SetState(txnlock.Committed)
				engine.registry.Forget(txn)

				time.Sleep(20 * time.Millisecond)
			}
		}()
	}
}
