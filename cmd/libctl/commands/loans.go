package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/repository"
	"github.com/openlib/library-backend/internal/service"
)

var loanFlags struct {
	userID      uint64
	bookID      uint64
	days        int
	maxRenewals int
	notes       string
	fine        float64
	finePaid    bool
	amount      float64
	activeOnly  bool
	status      string
}

var loansCmd = &cobra.Command{
	Use:   "loans",
	Short: "Manage the loan lifecycle",
}

var loansCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Borrow a copy for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			in := service.CreateLoanInput{
				UserID: loanFlags.userID,
				BookID: loanFlags.bookID,
				Notes:  ptrIfSet(loanFlags.notes),
			}
			if loanFlags.days > 0 {
				in.DueDate = time.Now().UTC().AddDate(0, 0, loanFlags.days)
			}
			if cmd.Flags().Changed("max-renewals") {
				in.MaxRenewals = &loanFlags.maxRenewals
			}
			loan, err := a.loans.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created loan %d: user %d borrowed book %d, due %s\n",
				loan.ID, loan.UserID, loan.BookID, loan.DueDate.Format("2006-01-02"))
			return nil
		})
	},
}

var loansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loans",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			loans, err := a.loans.List(ctx, repository.LoanFilter{
				Status:     model.LoanStatus(loanFlags.status),
				ActiveOnly: loanFlags.activeOnly,
				Skip:       skip,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			printLoans(loans)
			return nil
		})
	},
}

var loansShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one loan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			loan, err := a.loans.Get(ctx, id)
			if err != nil {
				return err
			}
			printLoanDetail(loan)
			return nil
		})
	},
}

var loansReturnCmd = &cobra.Command{
	Use:   "return <id>",
	Short: "Return a loan and release the copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			loan, err := a.loans.Return(ctx, id, service.ReturnInput{
				FineAmount: loanFlags.fine,
				FinePaid:   loanFlags.finePaid,
				Notes:      ptrIfSet(loanFlags.notes),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Returned loan %d", loan.ID)
			if loan.FineAmount > 0 {
				fmt.Printf(" with fine %.2f", loan.FineAmount)
			}
			fmt.Println()
			return nil
		})
	},
}

var loansRenewCmd = &cobra.Command{
	Use:   "renew <id>",
	Short: "Extend a loan's due date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			var due time.Time
			if loanFlags.days > 0 {
				due = time.Now().UTC().AddDate(0, 0, loanFlags.days)
			}
			loan, err := a.loans.Renew(ctx, id, due)
			if err != nil {
				return err
			}
			fmt.Printf("Renewed loan %d, now due %s (renewal %d/%d)\n",
				loan.ID, loan.DueDate.Format("2006-01-02"), loan.RenewalCount, loan.MaxRenewals)
			return nil
		})
	},
}

var loansOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List unreturned loans past due",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			loans, err := a.loans.Overdue(ctx, skip, limit)
			if err != nil {
				return err
			}
			printLoans(loans)
			return nil
		})
	},
}

var loansByUserCmd = &cobra.Command{
	Use:   "by-user <user-id>",
	Short: "List a user's loans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			loans, err := a.loans.ListByUser(ctx, id, loanFlags.activeOnly, skip, limit)
			if err != nil {
				return err
			}
			printLoans(loans)
			return nil
		})
	},
}

var loansByBookCmd = &cobra.Command{
	Use:   "by-book <book-id>",
	Short: "List a book's loans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			loans, err := a.loans.ListByBook(ctx, id, loanFlags.activeOnly, skip, limit)
			if err != nil {
				return err
			}
			printLoans(loans)
			return nil
		})
	},
}

var loansPayFineCmd = &cobra.Command{
	Use:   "pay-fine <id>",
	Short: "Settle a loan's fine in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			loan, err := a.loans.PayFine(ctx, id, loanFlags.amount)
			if err != nil {
				return err
			}
			fmt.Printf("Fine of %.2f paid on loan %d\n", loan.FineAmount, loan.ID)
			return nil
		})
	},
}

var loansStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show loan statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.loans.Statistics(ctx)
			if err != nil {
				return err
			}
			w := newTabWriter()
			fmt.Fprintf(w, "Total\t%d\n", s.TotalLoans)
			fmt.Fprintf(w, "Active\t%d\n", s.ActiveLoans)
			fmt.Fprintf(w, "Overdue\t%d\n", s.OverdueLoans)
			fmt.Fprintf(w, "Returned\t%d\n", s.ReturnedLoans)
			return w.Flush()
		})
	},
}

var loansActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "List loans currently out",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			loans, err := a.loans.List(ctx, repository.LoanFilter{
				ActiveOnly: true,
				Skip:       skip,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			printLoans(loans)
			return nil
		})
	},
}

var loansSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark loans past due as overdue and record fines",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			n, err := a.loans.SweepOverdue(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Swept %d loan(s) to overdue\n", n)
			return nil
		})
	},
}

func printLoans(loans []service.LoanDetail) {
	if len(loans) == 0 {
		fmt.Println("No loans found")
		return
	}
	w := newTabWriter()
	fmt.Fprintln(w, "ID\tUSER\tBOOK\tSTATUS\tDUE\tFINE\tOVERDUE")
	for i := range loans {
		l := &loans[i]
		overdue := "-"
		if l.IsOverdue {
			overdue = fmt.Sprintf("%dd", l.DaysOverdue)
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%.2f\t%s\n",
			l.ID, l.UserID, l.BookID, l.Status, l.DueDate.Format("2006-01-02"),
			l.FineAmount, overdue)
	}
	w.Flush()
}

func printLoanDetail(l service.LoanDetail) {
	w := newTabWriter()
	fmt.Fprintf(w, "ID\t%d\n", l.ID)
	fmt.Fprintf(w, "User\t%d\n", l.UserID)
	fmt.Fprintf(w, "Book\t%d\n", l.BookID)
	fmt.Fprintf(w, "Status\t%s\n", l.Status)
	fmt.Fprintf(w, "Loaned\t%s\n", l.LoanDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Due\t%s\n", l.DueDate.Format("2006-01-02"))
	if l.ReturnDate != nil {
		fmt.Fprintf(w, "Returned\t%s\n", l.ReturnDate.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "Renewals\t%d/%d\n", l.RenewalCount, l.MaxRenewals)
	fmt.Fprintf(w, "Fine\t%.2f (paid: %v)\n", l.FineAmount, l.FinePaid)
	fmt.Fprintf(w, "Overdue\t%v", l.IsOverdue)
	if l.IsOverdue {
		fmt.Fprintf(w, " (%d days)", l.DaysOverdue)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Renewable\t%v\n", l.CanRenew)
	if l.Notes != nil {
		fmt.Fprintf(w, "Notes\t%s\n", *l.Notes)
	}
	w.Flush()
}

func init() {
	cr := loansCreateCmd.Flags()
	cr.Uint64Var(&loanFlags.userID, "user", 0, "Borrowing user id (required)")
	cr.Uint64Var(&loanFlags.bookID, "book", 0, "Book id (required)")
	cr.IntVar(&loanFlags.days, "days", 0, "Loan length in days (default server-side)")
	cr.IntVar(&loanFlags.maxRenewals, "max-renewals", 0, "Renewal allowance (0-5)")
	cr.StringVar(&loanFlags.notes, "notes", "", "Notes")
	_ = loansCreateCmd.MarkFlagRequired("user")
	_ = loansCreateCmd.MarkFlagRequired("book")

	loansListCmd.Flags().StringVar(&loanFlags.status, "status", "", "Filter by status")
	loansListCmd.Flags().BoolVar(&loanFlags.activeOnly, "active", false, "Only loans currently out")

	ret := loansReturnCmd.Flags()
	ret.Float64Var(&loanFlags.fine, "fine", 0, "Fine floor; computed fine wins when larger")
	ret.BoolVar(&loanFlags.finePaid, "paid", false, "Mark the fine as paid on return")
	ret.StringVar(&loanFlags.notes, "notes", "", "Notes")

	loansRenewCmd.Flags().IntVar(&loanFlags.days, "days", 0, "New loan length in days from now")

	loansByUserCmd.Flags().BoolVar(&loanFlags.activeOnly, "active", false, "Only loans currently out")
	loansByBookCmd.Flags().BoolVar(&loanFlags.activeOnly, "active", false, "Only loans currently out")

	loansPayFineCmd.Flags().Float64Var(&loanFlags.amount, "amount", 0, "Payment amount (required)")
	_ = loansPayFineCmd.MarkFlagRequired("amount")

	loansCmd.AddCommand(loansCreateCmd, loansListCmd, loansShowCmd, loansReturnCmd,
		loansRenewCmd, loansOverdueCmd, loansByUserCmd, loansByBookCmd,
		loansPayFineCmd, loansStatsCmd, loansActiveCmd, loansSweepCmd)
	rootCmd.AddCommand(loansCmd)
}
