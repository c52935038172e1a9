package services

import (
	"context"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB collection names
const (
	ArchiveDBName            = "portfolio_archive"
	ArchiveDigestCollection  = "daily_digests"
	ArchiveCycleCollection   = "evaluation_cycles"
)

// ArchiveService mirrors digests and evaluation-cycle reports to MongoDB
// when MONGODB_URI is configured. Every operation is best-effort: a missing
// or broken archive never affects the primary Postgres state.
type ArchiveService struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	uriSet      bool
	lastError   string
}

// Global archive service instance
var GlobalArchive *ArchiveService

// InitArchiveService initializes the MongoDB archive client
func InitArchiveService(mongoURI string) error {
	if mongoURI == "" {
		log.Println("MONGODB_URI not set, archive storage disabled")
		GlobalArchive = &ArchiveService{
			uriSet:    false,
			lastError: "MONGODB_URI environment variable not set",
		}
		return nil
	}

	GlobalArchive = &ArchiveService{uriSet: true}
	return GlobalArchive.connect(mongoURI)
}

// connect establishes the MongoDB connection
func (s *ArchiveService) connect(uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		s.setDisconnected(err)
		return err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		s.setDisconnected(err)
		return err
	}

	s.mu.Lock()
	s.client = client
	s.database = client.Database(ArchiveDBName)
	s.isConnected = true
	s.mu.Unlock()

	log.Printf("Archive storage connected: %s", ArchiveDBName)
	return nil
}

func (s *ArchiveService) setDisconnected(err error) {
	s.mu.Lock()
	s.isConnected = false
	s.lastError = err.Error()
	s.mu.Unlock()
	log.Printf("Archive storage unavailable: %v", err)
}

// IsConnected reports whether the archive is usable
func (s *ArchiveService) IsConnected() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// ArchiveDigest stores a daily digest summary document
func (s *ArchiveService) ArchiveDigest(userID uint, summary map[string]interface{}) {
	if !s.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := bson.M{
		"user_id":    userID,
		"summary":    summary,
		"created_at": time.Now(),
	}

	if _, err := s.database.Collection(ArchiveDigestCollection).InsertOne(ctx, doc); err != nil {
		log.Printf("Failed to archive digest for user %d: %v", userID, err)
	}
}

// ArchiveCycleReport stores one evaluation-cycle report document
func (s *ArchiveService) ArchiveCycleReport(report map[string]interface{}) {
	if !s.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := bson.M{
		"report":     report,
		"created_at": time.Now(),
	}

	if _, err := s.database.Collection(ArchiveCycleCollection).InsertOne(ctx, doc); err != nil {
		log.Printf("Failed to archive cycle report: %v", err)
	}
}

// Close disconnects the archive client
func (s *ArchiveService) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		log.Printf("Error closing archive connection: %v", err)
	}
	s.isConnected = false
}
