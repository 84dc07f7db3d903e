// Command ppogatt-demo runs two PPoGATT stacks against each other over an
// in-memory lossy radio, showing loss detection, retransmission and
// cumulative acknowledgement at work.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pborman/getopt/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/prototest"
	"github.com/Bystroushaak/RebbleOS/internal/stack"
)

func main() {
	optCount := getopt.IntLong("count", 'n', 10, "Number of payloads to submit")
	optWindow := getopt.IntLong("window", 'w', model.DefaultWindowSize, "Outstanding window size")
	optTimeout := getopt.IntLong("rto", 't', 250, "Retransmit timeout in milliseconds")
	optLosses := getopt.StringLong("drop", 'l', "", "Comma-separated DATA sequences to lose once in transit")
	optVerbose := getopt.BoolLong("verbose", 'v', "Enable debug logging")
	helpFlag := getopt.BoolLong("help", 'h', "Display help")
	getopt.Parse()

	if *helpFlag {
		getopt.Usage()
		os.Exit(0)
	}

	if *optVerbose {
		log.SetLevel(log.DebugLevel)
	}

	watchDriver, phoneDriver := prototest.NewLoopbackPair(log.Log, time.Millisecond)
	for _, field := range strings.Split(*optLosses, ",") {
		if field == "" {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			log.WithError(err).Fatal("cannot parse --drop")
		}
		phoneDriver.DropData(seq, 1)
	}

	rto := time.Duration(*optTimeout) * time.Millisecond

	// the phone side opens the reset handshake, like a real companion app
	phone := stack.Start(model.NewConfig(
		model.WithWindowSize(*optWindow),
		model.WithRetransmitTimeout(rto),
		model.WithInitiateReset(true),
	), phoneDriver)
	defer phone.Close()

	watch := stack.Start(model.NewConfig(
		model.WithWindowSize(*optWindow),
		model.WithRetransmitTimeout(rto),
	), watchDriver)
	defer watch.Close()

	count := *optCount
	start := time.Now()

	g := &errgroup.Group{}

	g.Go(func() error {
		for i := 0; i < count; i++ {
			payload := []byte(fmt.Sprintf("payload-%03d", i))
			for {
				err := phone.Submit(payload)
				if err == nil {
					break
				}
				if err != stack.ErrWindowFull {
					return err
				}
				// backpressure: the window is full, retry shortly
				time.Sleep(5 * time.Millisecond)
			}
		}
		return nil
	})

	g.Go(func() error {
		for i := 0; i < count; i++ {
			select {
			case payload := <-watch.Delivered():
				log.Infof("delivered %q", string(payload))
			case payload := <-watch.Failed():
				log.Warnf("failed %q", string(payload))
			case <-time.After(30 * time.Second):
				return fmt.Errorf("timeout waiting for delivery %d", i)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("demo failed")
	}

	log.Infof("delivered %d payloads in %s", count, time.Since(start))
}
