package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/repository"
)

var bookFlags struct {
	isbn      string
	title     string
	author    string
	publisher string
	year      int
	edition   string
	desc      string
	category  string
	language  string
	pages     int
	status    string
	location  string
	quantity  int
	price     float64
	delta     int
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Manage the catalogue",
}

var booksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a title to the catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			b := model.Book{
				ISBN:        bookFlags.isbn,
				Title:       bookFlags.title,
				Author:      bookFlags.author,
				Publisher:   ptrIfSet(bookFlags.publisher),
				Edition:     ptrIfSet(bookFlags.edition),
				Description: ptrIfSet(bookFlags.desc),
				Category:    ptrIfSet(bookFlags.category),
				Language:    bookFlags.language,
				Status:      model.BookStatus(bookFlags.status),
				Location:    ptrIfSet(bookFlags.location),
				Quantity:    bookFlags.quantity,
			}
			if bookFlags.year > 0 {
				b.PublicationYear = &bookFlags.year
			}
			if bookFlags.pages > 0 {
				b.Pages = &bookFlags.pages
			}
			if cmd.Flags().Changed("price") {
				b.Price = &bookFlags.price
			}
			if err := a.books.Create(ctx, &b); err != nil {
				return err
			}
			fmt.Printf("Created book %d: %s (%s)\n", b.ID, b.Title, b.ISBN)
			return nil
		})
	},
}

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogue pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			books, err := a.books.List(ctx, repository.BookFilter{
				Category: bookFlags.category,
				Status:   model.BookStatus(bookFlags.status),
				Skip:     skip,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			printBooks(books)
			return nil
		})
	},
}

var booksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			b, err := a.books.Get(ctx, id)
			if err != nil {
				return err
			}
			printBookDetail(b)
			return nil
		})
	},
}

var booksUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a book's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			b, err := a.books.Get(ctx, id)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("isbn") {
				b.ISBN = bookFlags.isbn
			}
			if f.Changed("title") {
				b.Title = bookFlags.title
			}
			if f.Changed("author") {
				b.Author = bookFlags.author
			}
			if f.Changed("publisher") {
				b.Publisher = ptrIfSet(bookFlags.publisher)
			}
			if f.Changed("year") {
				b.PublicationYear = &bookFlags.year
			}
			if f.Changed("edition") {
				b.Edition = ptrIfSet(bookFlags.edition)
			}
			if f.Changed("description") {
				b.Description = ptrIfSet(bookFlags.desc)
			}
			if f.Changed("category") {
				b.Category = ptrIfSet(bookFlags.category)
			}
			if f.Changed("language") {
				b.Language = bookFlags.language
			}
			if f.Changed("pages") {
				b.Pages = &bookFlags.pages
			}
			if f.Changed("status") {
				b.Status = model.BookStatus(bookFlags.status)
			}
			if f.Changed("location") {
				b.Location = ptrIfSet(bookFlags.location)
			}
			if f.Changed("quantity") {
				b.Quantity = bookFlags.quantity
			}
			if f.Changed("price") {
				b.Price = &bookFlags.price
			}
			if err := a.books.Update(ctx, &b); err != nil {
				return err
			}
			fmt.Printf("Updated book %d\n", b.ID)
			return nil
		})
	},
}

var booksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a title without unreturned loans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		if !confirm(fmt.Sprintf("Delete book %d?", id)) {
			return fmt.Errorf("cancelled")
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.books.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted book %d\n", id)
			return nil
		})
	},
}

var booksSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search by title, author or ISBN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			books, err := a.books.Search(ctx, args[0], limit)
			if err != nil {
				return err
			}
			printBooks(books)
			return nil
		})
	},
}

var booksAvailableCmd = &cobra.Command{
	Use:   "available",
	Short: "List titles with loanable copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			books, err := a.books.Available(ctx, skip, limit)
			if err != nil {
				return err
			}
			printBooks(books)
			return nil
		})
	},
}

var booksCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List distinct categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cats, err := a.books.Categories(ctx)
			if err != nil {
				return err
			}
			for _, c := range cats {
				fmt.Println(c)
			}
			return nil
		})
	},
}

var booksByAuthorCmd = &cobra.Command{
	Use:   "by-author <author>",
	Short: "List titles by author substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			books, err := a.books.ByAuthor(ctx, args[0], skip, limit)
			if err != nil {
				return err
			}
			printBooks(books)
			return nil
		})
	},
}

var booksStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inventory statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.books.Statistics(ctx)
			if err != nil {
				return err
			}
			w := newTabWriter()
			fmt.Fprintf(w, "Titles\t%d\n", s.TotalTitles)
			fmt.Fprintf(w, "Copies\t%d\n", s.TotalCopies)
			fmt.Fprintf(w, "Available copies\t%d\n", s.AvailableCopies)
			fmt.Fprintf(w, "Available titles\t%d\n", s.AvailableTitles)
			fmt.Fprintf(w, "Loaned titles\t%d\n", s.LoanedTitles)
			fmt.Fprintf(w, "Maintenance\t%d\n", s.MaintenanceTitles)
			fmt.Fprintf(w, "Lost\t%d\n", s.LostTitles)
			return w.Flush()
		})
	},
}

var booksStockCmd = &cobra.Command{
	Use:   "stock <id>",
	Short: "Adjust the loanable-copy counter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			b, err := a.books.AdjustStock(ctx, id, bookFlags.delta)
			if err != nil {
				return err
			}
			fmt.Printf("Book %d: %d/%d copies available\n", b.ID, b.AvailableQuantity, b.Quantity)
			return nil
		})
	},
}

func printBooks(books []model.Book) {
	if len(books) == 0 {
		fmt.Println("No books found")
		return
	}
	w := newTabWriter()
	fmt.Fprintln(w, "ID\tISBN\tTITLE\tAUTHOR\tSTATUS\tAVAIL/TOTAL")
	for i := range books {
		b := &books[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d/%d\n",
			b.ID, b.ISBN, b.Title, b.Author, b.Status, b.AvailableQuantity, b.Quantity)
	}
	w.Flush()
}

func printBookDetail(b model.Book) {
	w := newTabWriter()
	fmt.Fprintf(w, "ID\t%d\n", b.ID)
	fmt.Fprintf(w, "ISBN\t%s\n", b.ISBN)
	fmt.Fprintf(w, "Title\t%s\n", b.Title)
	fmt.Fprintf(w, "Author\t%s\n", b.Author)
	fmt.Fprintf(w, "Publisher\t%s\n", strOrDash(b.Publisher))
	fmt.Fprintf(w, "Category\t%s\n", strOrDash(b.Category))
	fmt.Fprintf(w, "Language\t%s\n", b.Language)
	fmt.Fprintf(w, "Status\t%s\n", b.Status)
	fmt.Fprintf(w, "Location\t%s\n", strOrDash(b.Location))
	fmt.Fprintf(w, "Copies\t%d/%d available\n", b.AvailableQuantity, b.Quantity)
	if b.Price != nil {
		fmt.Fprintf(w, "Price\t%.2f\n", *b.Price)
	}
	w.Flush()
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func parseUint(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	add := booksAddCmd.Flags()
	add.StringVar(&bookFlags.isbn, "isbn", "", "ISBN (required)")
	add.StringVar(&bookFlags.title, "title", "", "Title (required)")
	add.StringVar(&bookFlags.author, "author", "", "Author (required)")
	add.StringVar(&bookFlags.publisher, "publisher", "", "Publisher")
	add.IntVar(&bookFlags.year, "year", 0, "Publication year")
	add.StringVar(&bookFlags.edition, "edition", "", "Edition")
	add.StringVar(&bookFlags.desc, "description", "", "Description")
	add.StringVar(&bookFlags.category, "category", "", "Category")
	add.StringVar(&bookFlags.language, "language", "", "Language code")
	add.IntVar(&bookFlags.pages, "pages", 0, "Page count")
	add.StringVar(&bookFlags.status, "status", "", "Status")
	add.StringVar(&bookFlags.location, "location", "", "Shelf location")
	add.IntVar(&bookFlags.quantity, "quantity", 1, "Number of copies")
	add.Float64Var(&bookFlags.price, "price", 0, "Price")
	_ = booksAddCmd.MarkFlagRequired("isbn")
	_ = booksAddCmd.MarkFlagRequired("title")
	_ = booksAddCmd.MarkFlagRequired("author")

	// update shares the flag set semantics of add; only changed flags
	// are applied.
	upd := booksUpdateCmd.Flags()
	upd.StringVar(&bookFlags.isbn, "isbn", "", "ISBN")
	upd.StringVar(&bookFlags.title, "title", "", "Title")
	upd.StringVar(&bookFlags.author, "author", "", "Author")
	upd.StringVar(&bookFlags.publisher, "publisher", "", "Publisher")
	upd.IntVar(&bookFlags.year, "year", 0, "Publication year")
	upd.StringVar(&bookFlags.edition, "edition", "", "Edition")
	upd.StringVar(&bookFlags.desc, "description", "", "Description")
	upd.StringVar(&bookFlags.category, "category", "", "Category")
	upd.StringVar(&bookFlags.language, "language", "", "Language code")
	upd.IntVar(&bookFlags.pages, "pages", 0, "Page count")
	upd.StringVar(&bookFlags.status, "status", "", "Status")
	upd.StringVar(&bookFlags.location, "location", "", "Shelf location")
	upd.IntVar(&bookFlags.quantity, "quantity", 0, "Number of copies")
	upd.Float64Var(&bookFlags.price, "price", 0, "Price")

	booksListCmd.Flags().StringVar(&bookFlags.category, "category", "", "Filter by category")
	booksListCmd.Flags().StringVar(&bookFlags.status, "status", "", "Filter by status")

	booksStockCmd.Flags().IntVar(&bookFlags.delta, "delta", 0, "Adjustment, e.g. -1 or +2")
	_ = booksStockCmd.MarkFlagRequired("delta")

	booksCmd.AddCommand(booksAddCmd, booksListCmd, booksShowCmd, booksUpdateCmd,
		booksDeleteCmd, booksSearchCmd, booksAvailableCmd, booksCategoriesCmd,
		booksByAuthorCmd, booksStatsCmd, booksStockCmd)
	rootCmd.AddCommand(booksCmd)
}
