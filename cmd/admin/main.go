package main

import (
	"fmt"
	"os"

	"ichatgo/backend/internal/storage"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	storageSvc := storage.NewStorageService(db, nil) // No redis needed for admin CLI

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "rooms":
		if err := listRooms(storageSvc); err != nil {
			log.Fatal().Err(err).Msg("error listing rooms")
		}
	case "purge":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin purge <room_id>")
			os.Exit(1)
		}
		roomID := os.Args[2]
		if err := storageSvc.DeleteRoom(roomID); err != nil {
			log.Fatal().Err(err).Msg("error purging room")
		}
		fmt.Printf("Room %s and its transcript have been deleted.\n", roomID)
	case "stats":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin stats <room_id>")
			os.Exit(1)
		}
		if err := roomStats(storageSvc, os.Args[2]); err != nil {
			log.Fatal().Err(err).Msg("error reading room stats")
		}
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

func listRooms(s storage.Storage) error {
	rooms, err := s.RoomsByRecency()
	if err != nil {
		return err
	}
	for _, room := range rooms {
		count, err := s.CountTurns(room.RoomID)
		if err != nil {
			return err
		}
		fmt.Printf("%-16s %-32s model=%-20s turns=%d\n", room.RoomID, room.DisplayLabel(), room.Model, count)
	}
	return nil
}

func roomStats(s storage.Storage, roomID string) error {
	room, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room == nil {
		fmt.Printf("Room %s not found.\n", roomID)
		return nil
	}
	count, err := s.CountTurns(roomID)
	if err != nil {
		return err
	}
	last, err := s.LastTurn(roomID)
	if err != nil {
		return err
	}
	fmt.Printf("Room:        %s (%s)\n", room.RoomID, room.DisplayLabel())
	fmt.Printf("Model:       %s\n", room.Model)
	fmt.Printf("Temperature: %g\n", room.Temperature)
	fmt.Printf("History:     %d\n", room.HistoryCount)
	fmt.Printf("Turns:       %d\n", count)
	if last != nil {
		fmt.Printf("Last turn:   %s  %q (complete=%v)\n", last.TurnKey, last.Question, last.IsComplete)
	}
	return nil
}
