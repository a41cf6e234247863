package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/cipherchat/cipherchat/pkg/network"
)

var serverAddr = flag.String("addr", "localhost:7420", "Server address")

func main() {
	flag.Parse()

	client := network.NewClient(*serverAddr)
	if err := client.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	fmt.Printf("Connected to %s (secure session established)\n", *serverAddr)

	// Print pushed chat events as they arrive
	go func() {
		for msg := range client.Pushes() {
			fmt.Printf("\n[chat %d] %s: %s\n> ", msg.ChatID, msg.SenderUsername, msg.Content)
		}
	}()

	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !runCommand(client, line) {
			return
		}
		fmt.Print("> ")
	}
}

func printHelp() {
	fmt.Println(`Commands:
  register <username> <password>
  login <username> <password>
  chat <username>                 start or open a private chat
  group <name> <user> [user...]   create a group chat
  chats                           list your chats
  history <chat-id>               show recent messages
  send <chat-id> <text>           send a message
  quit`)
}

// runCommand executes one command line; returns false to exit
func runCommand(client *network.Client, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "register":
		if len(args) != 2 {
			fmt.Println("usage: register <username> <password>")
			return true
		}
		resp, err := client.Register(args[0], args[1])
		printResult(err, func() string { return resp.Message })

	case "login":
		if len(args) != 2 {
			fmt.Println("usage: login <username> <password>")
			return true
		}
		resp, err := client.Login(args[0], args[1])
		printResult(err, func() string { return resp.Message })

	case "chat":
		if len(args) != 1 {
			fmt.Println("usage: chat <username>")
			return true
		}
		resp, err := client.StartPrivateChat(args[0])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return true
		}
		if !resp.Success {
			fmt.Println(resp.Message)
			return true
		}
		fmt.Printf("Chat %d with %s\n", resp.ChatID, resp.TargetUsername)
		for _, m := range resp.Messages {
			fmt.Printf("  [%s] %s: %s\n", m.Timestamp, m.SenderUsername, m.Content)
		}

	case "group":
		if len(args) < 2 {
			fmt.Println("usage: group <name> <user> [user...]")
			return true
		}
		resp, err := client.CreateGroupChat(args[0], args[1:])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return true
		}
		if !resp.Success {
			fmt.Println(resp.Message)
			return true
		}
		fmt.Printf("Group chat %d (%s) created\n", resp.ChatID, resp.Name)

	case "chats":
		resp, err := client.GetChats()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return true
		}
		for _, chat := range resp.Chats {
			fmt.Printf("  %d [%s] %s", chat.ChatID, chat.Kind, chat.Name)
			if chat.LastMessage != "" {
				fmt.Printf(": %s", chat.LastMessage)
			}
			fmt.Println()
		}

	case "history":
		if len(args) != 1 {
			fmt.Println("usage: history <chat-id>")
			return true
		}
		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Println("chat id must be a number")
			return true
		}
		resp, err := client.GetMessages(chatID, 0)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return true
		}
		for _, m := range resp.Messages {
			fmt.Printf("  [%s] %s: %s\n", m.Timestamp, m.SenderUsername, m.Content)
		}

	case "send":
		if len(args) < 2 {
			fmt.Println("usage: send <chat-id> <text>")
			return true
		}
		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Println("chat id must be a number")
			return true
		}
		resp, err := client.SendMessage(chatID, strings.Join(args[1:], " "))
		printResult(err, func() string {
			if resp.Success {
				return fmt.Sprintf("sent (message %d)", resp.MessageID)
			}
			return resp.Message
		})

	case "quit", "exit":
		if err := client.Disconnect(); err != nil {
			log.Printf("Disconnect error: %v", err)
		}
		return false

	default:
		printHelp()
	}

	return true
}

func printResult(err error, message func() string) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(message())
}
