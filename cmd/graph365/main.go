package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/njt/graph365/internal/auth"
	"github.com/njt/graph365/internal/config"
	"github.com/njt/graph365/internal/dateparse"
	"github.com/njt/graph365/internal/output"
	"github.com/njt/graph365/internal/plugin"
	"github.com/njt/graph365/internal/tokencache"
	"github.com/njt/graph365/libgraph"
)

var (
	jsonOut bool

	rootCmd = &cobra.Command{
		Use:   "graph365",
		Short: "Microsoft 365 / Microsoft Graph CLI for unattended runs",
		Long: `graph365 retrieves calendar, mail, profile and drive data from
Microsoft Graph. It is built for cron-style invocation: after a one-time
interactive 'graph365 login', every command resolves its access token
silently from the credential cache, refreshing it when needed.

Unknown subcommands are dispatched to graph365-* plugins found in PATH.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return plugin.Run(args[0], args[1:])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON (errors become {\"error\": ...} on stdout)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(mailCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(pluginsCmd)
}

// newStore builds the credential store from the configured candidate
// paths.
func newStore(cfg *config.Config) *tokencache.Store {
	return tokencache.NewStore(cfg.CacheCandidates()...)
}

// newGraphClient resolves an access token silently and returns an
// authenticated Graph client. Any failure is terminal for the command.
func newGraphClient(ctx context.Context) (*libgraph.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	mgr := auth.NewManager(newStore(cfg), auth.Options{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint:     cfg.Endpoint(),
	})

	token, err := mgr.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	return libgraph.NewClient(token), nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Microsoft 365",
	Long:  `Authenticate interactively using the device code flow and write the credential cache. All other commands run unattended against that cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		authenticator := auth.NewAuthenticator(newStore(cfg), auth.AuthenticatorOptions{
			ClientID: cfg.ClientID,
			TenantID: cfg.TenantID,
			Scopes:   cfg.Scopes,
			Endpoint: cfg.Endpoint(),
		})

		if err := authenticator.Login(cmd.Context()); err != nil {
			return err
		}

		if jsonOut {
			return output.WriteJSON(os.Stdout, map[string]any{"success": true, "message": "authenticated"})
		}
		fmt.Println("Successfully authenticated!")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  `Display whether a silent token resolution would succeed, and for whom.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGraphClient(cmd.Context())
		if err != nil {
			if jsonOut {
				return output.WriteJSON(os.Stdout, map[string]any{"authenticated": false, "detail": err.Error()})
			}
			fmt.Println("Status: Not authenticated")
			fmt.Printf("Detail: %v\n", err)
			return nil
		}

		user, err := client.GetMe(cmd.Context())
		if err != nil {
			if jsonOut {
				return output.WriteJSON(os.Stdout, map[string]any{"authenticated": true})
			}
			fmt.Println("Status: Authenticated")
			fmt.Printf("Warning: could not retrieve user info: %v\n", err)
			return nil
		}

		if jsonOut {
			return output.WriteJSON(os.Stdout, map[string]any{
				"authenticated": true,
				"user":          user.DisplayName,
				"email":         user.UserPrincipalName,
			})
		}
		fmt.Println("Status: Authenticated")
		fmt.Printf("User: %s\n", user.DisplayName)
		fmt.Printf("Email: %s\n", user.UserPrincipalName)
		return nil
	},
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the signed-in user's profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		user, err := client.GetMe(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get profile: %w", err)
		}

		if jsonOut {
			return output.WriteJSON(os.Stdout, user)
		}

		fmt.Printf("Name: %s\n", user.DisplayName)
		fmt.Printf("Email: %s\n", user.UserPrincipalName)
		if user.Mail != "" && user.Mail != user.UserPrincipalName {
			fmt.Printf("Mail: %s\n", user.Mail)
		}
		if user.JobTitle != "" {
			fmt.Printf("Title: %s\n", user.JobTitle)
		}
		if user.OfficeLocation != "" {
			fmt.Printf("Office: %s\n", user.OfficeLocation)
		}
		return nil
	},
}

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Retrieve calendar events",
}

var calendarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List calendar events",
	Long:  `List calendar events for a time range. Defaults to today. Accepts natural language dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		days, _ := cmd.Flags().GetInt("days")
		calendarID, _ := cmd.Flags().GetString("calendar-id")
		top, _ := cmd.Flags().GetInt("top")

		now := time.Now()
		var startTime time.Time
		var err error
		if startStr == "" {
			startTime = dateparse.StartOfDay(now)
		} else {
			startTime, err = dateparse.Parse(startStr, now)
			if err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
		}

		var endTime time.Time
		switch {
		case days > 0:
			endTime = dateparse.AddDays(startTime, days)
		case endStr != "":
			endTime, err = dateparse.Parse(endStr, now)
			if err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}
		default:
			endTime = dateparse.AddDays(startTime, 1)
		}

		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		events, err := client.CalendarView(cmd.Context(), &libgraph.CalendarViewOptions{
			StartDateTime: dateparse.FormatISO8601(startTime),
			EndDateTime:   dateparse.FormatISO8601(endTime),
			CalendarID:    calendarID,
			Top:           top,
		})
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		if jsonOut {
			return output.WriteList(os.Stdout, events, len(events))
		}

		if len(events) == 0 {
			fmt.Println("No events found")
			return nil
		}

		for _, event := range events {
			fmt.Printf("ID: %s\n", event.ID)
			fmt.Printf("Subject: %s\n", event.Subject)
			if event.Start != nil {
				fmt.Printf("Start: %s\n", event.Start.DateTime)
			}
			if event.End != nil {
				fmt.Printf("End: %s\n", event.End.DateTime)
			}
			if event.IsAllDay {
				fmt.Println("AllDay: true")
			}
			if event.Location != nil && event.Location.DisplayName != "" {
				fmt.Printf("Location: %s\n", event.Location.DisplayName)
			}
			if event.Organizer != nil && event.Organizer.EmailAddress != nil {
				fmt.Printf("Organizer: %s <%s>\n", event.Organizer.EmailAddress.Name, event.Organizer.EmailAddress.Address)
			}
			if event.ResponseStatus != nil && event.ResponseStatus.Response != "" {
				fmt.Printf("Response: %s\n", event.ResponseStatus.Response)
			}
			fmt.Println("---")
		}
		return nil
	},
}

var calendarGetCmd = &cobra.Command{
	Use:   "get <event-id>",
	Short: "Get a specific calendar event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		calendarID, _ := cmd.Flags().GetString("calendar-id")
		markdown, _ := cmd.Flags().GetBool("markdown")

		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		event, err := client.GetEvent(cmd.Context(), args[0], calendarID)
		if err != nil {
			return fmt.Errorf("failed to get event: %w", err)
		}

		if markdown && event.Body != nil {
			event.Body.ContentType, event.Body.Content = output.ConvertBodyHTML(event.Body.ContentType, event.Body.Content)
		}

		if jsonOut {
			return output.WriteJSON(os.Stdout, event)
		}

		fmt.Printf("ID: %s\n", event.ID)
		fmt.Printf("Subject: %s\n", event.Subject)
		if event.Start != nil {
			fmt.Printf("Start: %s (%s)\n", event.Start.DateTime, event.Start.TimeZone)
		}
		if event.End != nil {
			fmt.Printf("End: %s (%s)\n", event.End.DateTime, event.End.TimeZone)
		}
		if event.Location != nil && event.Location.DisplayName != "" {
			fmt.Printf("Location: %s\n", event.Location.DisplayName)
		}
		if len(event.Attendees) > 0 {
			fmt.Println("\nAttendees:")
			for _, att := range event.Attendees {
				if att.EmailAddress == nil {
					continue
				}
				status := ""
				if att.Status != nil {
					status = att.Status.Response
				}
				fmt.Printf("  - %s <%s> (%s)\n", att.EmailAddress.Name, att.EmailAddress.Address, status)
			}
		}
		if event.OnlineMeeting != nil && event.OnlineMeeting.JoinURL != "" {
			fmt.Printf("\nOnline Meeting: %s\n", event.OnlineMeeting.JoinURL)
		}
		if event.Body != nil && event.Body.Content != "" {
			fmt.Printf("\nBody (%s):\n%s\n", event.Body.ContentType, event.Body.Content)
		}
		return nil
	},
}

var calendarCalendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List available calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		calendars, err := client.ListCalendars(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list calendars: %w", err)
		}

		if jsonOut {
			return output.WriteList(os.Stdout, calendars, len(calendars))
		}

		if len(calendars) == 0 {
			fmt.Println("No calendars found")
			return nil
		}

		for i, cal := range calendars {
			fmt.Printf("%d. %s\n", i+1, cal.Name)
			fmt.Printf("   ID: %s\n", cal.ID)
			if cal.Owner != nil {
				fmt.Printf("   Owner: %s\n", cal.Owner.Address)
			}
		}
		return nil
	},
}

func init() {
	calendarListCmd.Flags().String("start", "", "Start of time range (natural language or ISO 8601, default: today)")
	calendarListCmd.Flags().String("end", "", "End of time range (natural language or ISO 8601)")
	calendarListCmd.Flags().Int("days", 0, "Number of days from start (overrides --end)")
	calendarListCmd.Flags().String("calendar-id", "", "Calendar ID (default: primary calendar)")
	calendarListCmd.Flags().Int("top", 0, "Page size hint")

	calendarGetCmd.Flags().String("calendar-id", "", "Calendar ID the event lives in")
	calendarGetCmd.Flags().Bool("markdown", false, "Convert HTML body to Markdown")

	calendarCmd.AddCommand(calendarListCmd)
	calendarCmd.AddCommand(calendarGetCmd)
	calendarCmd.AddCommand(calendarCalendarsCmd)
}

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Retrieve email messages",
}

var mailListCmd = &cobra.Command{
	Use:   "list",
	Short: "List email messages",
	Long:  `List messages from the authenticated user's mailbox, newest first. --since/--until accept natural language dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, _ := cmd.Flags().GetString("folder-id")
		top, _ := cmd.Flags().GetInt("top")
		sinceStr, _ := cmd.Flags().GetString("since")
		untilStr, _ := cmd.Flags().GetString("until")
		unread, _ := cmd.Flags().GetBool("unread")

		now := time.Now()
		opts := &libgraph.ListMessagesOptions{
			FolderID: folderID,
			Top:      top,
			Unread:   unread,
		}
		if sinceStr != "" {
			since, err := dateparse.ParsePast(sinceStr, now)
			if err != nil {
				return fmt.Errorf("invalid --since date: %w", err)
			}
			opts.Since = &since
		}
		if untilStr != "" {
			until, err := dateparse.ParsePast(untilStr, now)
			if err != nil {
				return fmt.Errorf("invalid --until date: %w", err)
			}
			opts.Until = &until
		}

		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		messages, err := client.ListMessages(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}

		if jsonOut {
			return output.WriteList(os.Stdout, messages, len(messages))
		}

		if len(messages) == 0 {
			fmt.Println("No messages found")
			return nil
		}

		for _, msg := range messages {
			fmt.Printf("ID: %s\n", msg.ID)
			fmt.Printf("Subject: %s\n", msg.Subject)
			if msg.From != nil && msg.From.EmailAddress != nil {
				fmt.Printf("From: %s <%s>\n", msg.From.EmailAddress.Name, msg.From.EmailAddress.Address)
			}
			if msg.ReceivedDateTime != nil {
				fmt.Printf("Received: %s\n", msg.ReceivedDateTime.Format(time.RFC3339))
			}
			if msg.BodyPreview != "" {
				fmt.Printf("Preview: %s\n", output.Truncate(msg.BodyPreview, 100))
			}
			fmt.Println("---")
		}
		return nil
	},
}

var mailGetCmd = &cobra.Command{
	Use:   "get <message-id>",
	Short: "Get a specific email message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markdown, _ := cmd.Flags().GetBool("markdown")

		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		message, err := client.GetMessage(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get message: %w", err)
		}

		if markdown && message.Body != nil {
			message.Body.ContentType, message.Body.Content = output.ConvertBodyHTML(message.Body.ContentType, message.Body.Content)
		}

		if jsonOut {
			return output.WriteJSON(os.Stdout, message)
		}

		fmt.Printf("ID: %s\n", message.ID)
		fmt.Printf("Subject: %s\n", message.Subject)
		if message.From != nil && message.From.EmailAddress != nil {
			fmt.Printf("From: %s <%s>\n", message.From.EmailAddress.Name, message.From.EmailAddress.Address)
		}
		for i, r := range message.ToRecipients {
			if i == 0 {
				fmt.Printf("To: ")
			} else {
				fmt.Printf(", ")
			}
			if r.EmailAddress != nil {
				fmt.Printf("%s <%s>", r.EmailAddress.Name, r.EmailAddress.Address)
			}
			if i == len(message.ToRecipients)-1 {
				fmt.Println()
			}
		}
		if message.ReceivedDateTime != nil {
			fmt.Printf("Received: %s\n", message.ReceivedDateTime.Format(time.RFC3339))
		}
		if message.Body != nil {
			fmt.Printf("\nBody (%s):\n%s\n", message.Body.ContentType, message.Body.Content)
		}
		return nil
	},
}

func init() {
	mailListCmd.Flags().String("folder-id", "", "Folder ID (e.g., inbox, sentitems)")
	mailListCmd.Flags().Int("top", 0, "Number of messages to retrieve (default: 25)")
	mailListCmd.Flags().String("since", "", "Only messages received on or after this date")
	mailListCmd.Flags().String("until", "", "Only messages received before this date")
	mailListCmd.Flags().Bool("unread", false, "Only unread messages")

	mailGetCmd.Flags().Bool("markdown", false, "Convert HTML body to Markdown")

	mailCmd.AddCommand(mailListCmd)
	mailCmd.AddCommand(mailGetCmd)
}

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Retrieve OneDrive files",
}

var driveListCmd = &cobra.Command{
	Use:   "list [folder-path]",
	Short: "List files in a drive folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderPath := ""
		if len(args) == 1 {
			folderPath = args[0]
		}

		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		items, err := client.ListDriveItems(cmd.Context(), folderPath)
		if err != nil {
			return fmt.Errorf("failed to list drive items: %w", err)
		}

		if jsonOut {
			return output.WriteList(os.Stdout, items, len(items))
		}

		if len(items) == 0 {
			fmt.Println("No items found")
			return nil
		}

		for _, item := range items {
			kind := "file"
			if item.IsFolder() {
				kind = "folder"
			}
			fmt.Printf("%-6s %10d  %s  (%s)\n", kind, item.Size, item.Name, item.ID)
		}
		return nil
	},
}

var driveGetCmd = &cobra.Command{
	Use:   "get <item-id>",
	Short: "Get drive item metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGraphClient(cmd.Context())
		if err != nil {
			return err
		}

		item, err := client.GetDriveItem(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get drive item: %w", err)
		}

		if jsonOut {
			return output.WriteJSON(os.Stdout, item)
		}

		fmt.Printf("Name: %s\n", item.Name)
		fmt.Printf("ID: %s\n", item.ID)
		fmt.Printf("Size: %d\n", item.Size)
		if item.LastModifiedDateTime != nil {
			fmt.Printf("Modified: %s\n", item.LastModifiedDateTime.Format(time.RFC3339))
		}
		if item.WebURL != "" {
			fmt.Printf("URL: %s\n", item.WebURL)
		}
		return nil
	},
}

func init() {
	driveCmd.AddCommand(driveListCmd)
	driveCmd.AddCommand(driveGetCmd)
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List available plugins",
	Long:  `List all available graph365-* plugins in PATH`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plugins, err := plugin.List()
		if err != nil {
			return fmt.Errorf("failed to list plugins: %w", err)
		}

		if jsonOut {
			return output.WriteList(os.Stdout, plugins, len(plugins))
		}

		if len(plugins) == 0 {
			fmt.Println("No plugins found in PATH")
			return nil
		}

		fmt.Println("Available plugins:")
		for _, p := range plugins {
			fmt.Printf("  - %s\n", p)
		}
		return nil
	},
}

func setupLogging() {
	level := slog.LevelWarn
	switch os.Getenv("GRAPH365_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	setupLogging()

	if err := rootCmd.Execute(); err != nil {
		if jsonOut {
			output.WriteError(os.Stdout, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
