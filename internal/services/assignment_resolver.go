package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/mailer"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/sharelink"
)

// manualResolution is what a manual assignment produced inside the transaction;
// notifications go out after commit
type manualResolution struct {
	assigned    []*models.User
	provisioned []provisionedUser
}

// AssignmentResolver turns a test's assignment block into recipients and
// notifications
type AssignmentResolver struct {
	mailer      mailer.Mailer
	codec       *sharelink.Codec
	provisioner *userProvisioner
	publisher   events.EventPublisher
	logger      *slog.Logger
}

func NewAssignmentResolver(m mailer.Mailer, codec *sharelink.Codec, provisioner *userProvisioner, publisher events.EventPublisher, logger *slog.Logger) *AssignmentResolver {
	return &AssignmentResolver{
		mailer:      m,
		codec:       codec,
		provisioner: provisioner,
		publisher:   publisher,
		logger:      logger,
	}
}

// ResolveManual resolves literal emails and group ids into a deduplicated user
// id list and stores it on the test. Unknown emails become test-takers when
// provision is set and are rejected otherwise.
func (r *AssignmentResolver) ResolveManual(ctx context.Context, repo repositories.Repository, test *models.Test, emails, groupIDs []string, createdBy string, provision bool) (*manualResolution, error) {
	users, provisioned, err := r.provisioner.resolveEmails(ctx, repo, emails, createdBy, provision, "assignment.manualAssignment.individualUsers")
	if err != nil {
		return nil, err
	}

	individualIDs := make([]string, 0, len(users))
	for _, u := range users {
		individualIDs = append(individualIDs, u.ID)
	}

	groupIDs = dedupeIDs(groupIDs)
	var memberIDs []string
	if len(groupIDs) > 0 {
		groups, err := repo.Group().GetByIDs(ctx, nil, groupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load groups: %w", err)
		}
		if len(groups) != len(groupIDs) {
			found := make(map[string]bool, len(groups))
			for _, g := range groups {
				found[g.ID] = true
			}
			for _, id := range groupIDs {
				if !found[id] {
					return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
				}
			}
		}
		for _, g := range groups {
			memberIDs = append(memberIDs, g.MemberUserIDs...)
		}
	}

	allIDs := dedupeIDs(individualIDs, memberIDs)

	// Group members we have not loaded yet, for notification
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}
	var missing []string
	for _, id := range allIDs {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		members, err := repo.User().GetByIDs(ctx, nil, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to load group members: %w", err)
		}
		users = append(users, members...)
	}

	test.Assignment.ManualAssignment = models.ManualAssignment{
		IndividualUserIDs: allIDs,
		GroupIDs:          groupIDs,
	}
	return &manualResolution{assigned: users, provisioned: provisioned}, nil
}

// NotifyManual mails credentials to new accounts and an assignment notice to
// existing ones. Per-recipient failures are logged and counted.
func (r *AssignmentResolver) NotifyManual(ctx context.Context, test *models.Test, res *manualResolution, report *DeliveryReport) {
	r.provisioner.notifyProvisioned(ctx, res.provisioned, fmt.Sprintf("to take %q", test.Title), report)

	fresh := make(map[string]bool, len(res.provisioned))
	for _, pu := range res.provisioned {
		fresh[pu.User.ID] = true
	}
	for _, u := range res.assigned {
		if fresh[u.ID] {
			continue
		}
		report.Recipients++
		msg, err := mailer.AssignedMessage(u.Email, mailer.AssignedData{
			Name:        u.Name,
			TestTitle:   test.Title,
			Instruction: test.Instruction,
		})
		if err == nil {
			err = r.mailer.Send(ctx, msg)
		}
		r.record(report, test.ID, u.Email, err)
	}
}

// MintLink returns a sharable link of the test's configured sharing type
func (r *AssignmentResolver) MintLink(test *models.Test, sharing models.LinkSharing) (*sharelink.Link, error) {
	link, err := r.codec.Encode(test, sharing)
	if err != nil {
		if errors.Is(err, sharelink.ErrWindowClosed) {
			return nil, ErrLinkWindowClosed
		}
		return nil, fmt.Errorf("failed to mint link: %w", err)
	}
	return link, nil
}

// SendInvitations mails every distinct invitation address a restricted link.
// It never returns an error for individual send failures.
func (r *AssignmentResolver) SendInvitations(ctx context.Context, test *models.Test, link *sharelink.Link) *DeliveryReport {
	report := &DeliveryReport{}
	for _, addr := range normalizeEmails(test.Assignment.InvitationEmails) {
		report.Recipients++
		msg, err := mailer.InvitationMessage(addr, mailer.InvitationData{
			TestTitle:   test.Title,
			Instruction: test.Instruction,
			AccessCode:  test.Configuration.AccessCode,
			Link:        link.URL,
		})
		if err == nil {
			err = r.mailer.Send(ctx, msg)
		}
		r.record(report, test.ID, addr, err)
	}
	return report
}

func (r *AssignmentResolver) record(report *DeliveryReport, testID, to string, err error) {
	if err != nil {
		report.Failed++
		r.logger.Error("Failed to send assignment email",
			"test_id", testID, "to", to, "error", fmt.Errorf("%w: %v", ErrDependencyFailure, err))
		return
	}
	report.Sent++
}

func (r *AssignmentResolver) publishExecuted(ctx context.Context, test *models.Test, scheduled bool, report *DeliveryReport) {
	data := events.AssignmentExecutedData{
		TestID:    test.ID,
		Method:    string(test.Assignment.Method),
		Scheduled: scheduled,
	}
	if report != nil {
		data.Recipients = report.Recipients
		data.Failed = report.Failed
	}
	if err := r.publisher.Publish(ctx, events.NewEvent(events.TypeAssignmentExecuted, data)); err != nil {
		r.logger.Warn("Failed to publish event", "type", events.TypeAssignmentExecuted, "test_id", test.ID, "error", err)
	}
}
