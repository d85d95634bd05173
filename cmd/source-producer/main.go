// Command source-producer announces replay sources on the ingestion topic.
// It reads source identifiers from a file (one per line) or generates
// synthetic ones for load testing.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// SourceMessage is the wire format consumed by the server's Kafka consumer.
type SourceMessage struct {
	Source   string `json:"source"`
	ServerID string `json:"server_id,omitempty"`
}

var serverIDs = []string{"lizard", "leviathan", "salamander", "vulture", "miros"}

// syntheticSource fabricates a plausible replay link with an embedded
// round timestamp.
func syntheticSource(idx int) SourceMessage {
	serverID := serverIDs[idx%len(serverIDs)]
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(idx) * 37 * time.Minute)
	return SourceMessage{
		Source: fmt.Sprintf(
			"https://replays.example.com/%s/%s-round_%d.yaml",
			serverID, date.Format("2006_01_02-15_04"), 10000+idx,
		),
		ServerID: serverID,
	}
}

func readSources(path string) ([]SourceMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var sources []SourceMessage
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sources = append(sources, SourceMessage{Source: line})
	}
	return sources, scanner.Err()
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "replay-sources", "Kafka topic")
	sourcesFile := flag.String("sources", "", "File with replay source URLs, one per line")
	count := flag.Int("count", 100, "Number of synthetic sources to generate (ignored with -sources)")
	rate := flag.Int("rate", 10, "Announcements per second")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Replay source producer")
	fmt.Printf("  Brokers: %s\n", *brokers)
	fmt.Printf("  Topic:   %s\n", *topic)

	var sources []SourceMessage
	if *sourcesFile != "" {
		var err error
		sources, err = readSources(*sourcesFile)
		if err != nil {
			log.Fatalf("Failed to read sources file: %v", err)
		}
		fmt.Printf("  Sources: %d (from %s)\n", len(sources), *sourcesFile)
	} else {
		for i := 0; i < *count; i++ {
			sources = append(sources, syntheticSource(i))
		}
		fmt.Printf("  Sources: %d (synthetic)\n", len(sources))
	}
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendMessage := func(announcement SourceMessage) {
		data, err := json.Marshal(announcement)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(announcement.ServerID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	interval := time.Second / time.Duration(*rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Shuffle so per-server ordering does not correlate with round numbers
	rand.Shuffle(len(sources), func(i, j int) {
		sources[i], sources[j] = sources[j], sources[i]
	})

	sent := 0
loop:
	for sent < len(sources) {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			break loop
		case <-ticker.C:
			sendMessage(sources[sent])
			sent++
			if sent%100 == 0 {
				fmt.Printf("  Announced %d/%d sources\n", sent, len(sources))
			}
		}
	}

	close(done)
	producer.AsyncClose()
	wg.Wait()
	fmt.Printf("\nCompleted. Announced: %d, Sent: %d, Errors: %d\n",
		sent, atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
}
