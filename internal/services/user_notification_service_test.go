package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sekolahku/backend/internal/models"
	apperrors "github.com/sekolahku/backend/pkg/errors"
)

func TestAssignToUsersCreatesOnlyTheDelta(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", models.RoleStudent)
	budi := createTestUser(t, db, "Budi", models.RoleStudent)
	notification := createTestNotification(t, db, "Exam schedule", models.TypeAnnouncement, time.Now().UTC())

	first, err := svc.AssignToUsers(ctx, AssignInput{
		NotificationID: notification.ID,
		UserIDs:        []string{alice.ID, budi.ID, alice.ID}, // duplicate collapses
	})
	require.NoError(t, err)
	require.Equal(t, 2, first.AssignedCount)
	require.Equal(t, 0, first.SkippedCount)
	require.Len(t, first.Assignments, 2)

	// Repeating the call inserts nothing and reports everything skipped.
	second, err := svc.AssignToUsers(ctx, AssignInput{
		NotificationID: notification.ID,
		UserIDs:        []string{alice.ID, budi.ID},
	})
	require.NoError(t, err)
	require.Equal(t, 0, second.AssignedCount)
	require.Equal(t, 2, second.SkippedCount)

	require.EqualValues(t, 1, countPairs(t, db, alice.ID, notification.ID))
	require.EqualValues(t, 1, countPairs(t, db, budi.ID, notification.ID))
}

func TestAssignToUsersMissingNotification(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)

	_, err := svc.AssignToUsers(ctx, AssignInput{
		NotificationID: "missing-notification",
		UserIDs:        []string{user.ID},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Contains(t, err.Error(), "missing-notification")

	var count int64
	require.NoError(t, db.Model(&models.UserNotification{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestAssignToUsersEnumeratesEveryMissingUser(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	notification := createTestNotification(t, db, "Field trip", models.TypeEvent, time.Now().UTC())

	_, err := svc.AssignToUsers(ctx, AssignInput{
		NotificationID: notification.ID,
		UserIDs:        []string{user.ID, "ghost-1", "ghost-2"},
	})
	require.Error(t, err)

	appErr := apperrors.FromError(err)
	require.Equal(t, "NOT_FOUND", appErr.Code)
	require.Contains(t, appErr.Message, "ghost-1")
	require.Contains(t, appErr.Message, "ghost-2")

	var count int64
	require.NoError(t, db.Model(&models.UserNotification{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestAssignToUsersRejectsEmptyAndOversizedBatches(t *testing.T) {
	_, svc := newFanoutFixture(t)
	ctx := context.Background()

	_, err := svc.AssignToUsers(ctx, AssignInput{NotificationID: "n", UserIDs: nil})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	oversized := make([]string, 1001)
	for i := range oversized {
		oversized[i] = "user"
	}
	_, err = svc.AssignToUsers(ctx, AssignInput{NotificationID: "n", UserIDs: oversized})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestBulkAssignCrossProduct(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	u1 := createTestUser(t, db, "Alice", models.RoleStudent)
	u2 := createTestUser(t, db, "Budi", models.RoleStudent)
	n1 := createTestNotification(t, db, "First", models.TypeGeneral, time.Now().UTC())
	n2 := createTestNotification(t, db, "Second", models.TypeGeneral, time.Now().UTC())

	// Pre-existing pair (n1, u1) must be skipped, not duplicated.
	require.NoError(t, db.Create(&models.UserNotification{UserID: u1.ID, NotificationID: n1.ID}).Error)

	result, err := svc.BulkAssign(ctx, BulkAssignInput{
		NotificationIDs: []string{n1.ID, n2.ID},
		UserIDs:         []string{u1.ID, u2.ID},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.AssignedCount)
	require.Equal(t, 1, result.SkippedCount)

	var count int64
	require.NoError(t, db.Model(&models.UserNotification{}).Count(&count).Error)
	require.EqualValues(t, 4, count)
}

func TestBulkAssignReportsBothMissingSets(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	notification := createTestNotification(t, db, "Known", models.TypeGeneral, time.Now().UTC())

	_, err := svc.BulkAssign(ctx, BulkAssignInput{
		NotificationIDs: []string{notification.ID, "ghost-notification"},
		UserIDs:         []string{user.ID, "ghost-user"},
	})
	require.Error(t, err)

	appErr := apperrors.FromError(err)
	require.Equal(t, "NOT_FOUND", appErr.Code)
	require.Contains(t, appErr.Message, "ghost-notification")
	require.Contains(t, appErr.Message, "ghost-user")

	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	require.Equal(t, []string{"ghost-notification"}, details["missing_notification_ids"])
	require.Equal(t, []string{"ghost-user"}, details["missing_user_ids"])

	var count int64
	require.NoError(t, db.Model(&models.UserNotification{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestAssignByRoleBroadcast(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	teachers := []models.User{
		createTestUser(t, db, "Pak Agus", models.RoleTeacher),
		createTestUser(t, db, "Bu Sari", models.RoleTeacher),
		createTestUser(t, db, "Pak Dedi", models.RoleTeacher),
	}
	createTestUser(t, db, "Alice", models.RoleStudent)
	createTestUser(t, db, "Budi", models.RoleStudent)

	notification := createTestNotification(t, db, "Staff meeting", models.TypeGeneral, time.Now().UTC())

	result, err := svc.AssignByRole(ctx, AssignByRoleInput{
		NotificationID: notification.ID,
		Roles:          []string{"teacher", "teacher"}, // duplicate collapses
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.AssignedCount)
	require.Equal(t, 0, result.SkippedCount)

	for _, teacher := range teachers {
		require.EqualValues(t, 1, countPairs(t, db, teacher.ID, notification.ID))
	}

	var total int64
	require.NoError(t, db.Model(&models.UserNotification{}).Count(&total).Error)
	require.EqualValues(t, 3, total)
}

func TestAssignByRoleRejectsUnknownRoleBeforeLookup(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	_, err := svc.AssignByRole(ctx, AssignByRoleInput{
		NotificationID: "irrelevant",
		Roles:          []string{"principal"},
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	require.Contains(t, err.Error(), "principal")

	var count int64
	require.NoError(t, db.Model(&models.UserNotification{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestAssignByRoleNoMatchingUsers(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	notification := createTestNotification(t, db, "Parent update", models.TypeGeneral, time.Now().UTC())

	_, err := svc.AssignByRole(ctx, AssignByRoleInput{
		NotificationID: notification.ID,
		Roles:          []string{"parent"},
	})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Contains(t, err.Error(), "parent")
}

func TestInsertAssignmentsAbsorbsExistingPair(t *testing.T) {
	db, svc := newFanoutFixture(t)

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	notification := createTestNotification(t, db, "Raced", models.TypeGeneral, time.Now().UTC())

	// Simulates a concurrent call winning the race between the engine's
	// reconciliation read and its write.
	require.NoError(t, db.Create(&models.UserNotification{UserID: user.ID, NotificationID: notification.ID}).Error)

	created, raceSkipped, err := svc.insertAssignments(db, []models.UserNotification{
		{UserID: user.ID, NotificationID: notification.ID},
	})
	require.NoError(t, err)
	require.Empty(t, created)
	require.Equal(t, 1, raceSkipped)

	require.EqualValues(t, 1, countPairs(t, db, user.ID, notification.ID))
}

func TestMarkReadCountsTransitions(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	n1 := createTestNotification(t, db, "One", models.TypeGeneral, time.Now().UTC())
	n2 := createTestNotification(t, db, "Two", models.TypeGeneral, time.Now().UTC())

	_, err := svc.AssignToUsers(ctx, AssignInput{NotificationID: n1.ID, UserIDs: []string{user.ID}})
	require.NoError(t, err)
	_, err = svc.AssignToUsers(ctx, AssignInput{NotificationID: n2.ID, UserIDs: []string{user.ID}})
	require.NoError(t, err)

	first, err := svc.MarkRead(ctx, user.ID, MarkReadInput{NotificationIDs: []string{n1.ID}})
	require.NoError(t, err)
	require.Equal(t, 1, first.MarkedReadCount)
	require.Equal(t, 0, first.AlreadyReadCount)

	// n1 already read, n2 transitions, the ghost pair is ignored entirely.
	second, err := svc.MarkRead(ctx, user.ID, MarkReadInput{
		NotificationIDs: []string{n1.ID, n2.ID, "ghost"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, second.MarkedReadCount)
	require.Equal(t, 1, second.AlreadyReadCount)

	var row models.UserNotification
	require.NoError(t, db.First(&row, "user_id = ? AND notification_id = ?", user.ID, n1.ID).Error)
	require.True(t, row.IsRead)
	require.NotNil(t, row.ReadAt)
}

func TestMarkAllReadIsIdempotent(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	for i, title := range []string{"One", "Two", "Three"} {
		n := createTestNotification(t, db, title, models.TypeGeneral, time.Now().UTC().Add(time.Duration(i)*time.Second))
		_, err := svc.AssignToUsers(ctx, AssignInput{NotificationID: n.ID, UserIDs: []string{user.ID}})
		require.NoError(t, err)
	}

	transitioned, err := svc.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, transitioned)

	var rows []models.UserNotification
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&rows).Error)
	readAts := map[string]time.Time{}
	for _, row := range rows {
		require.True(t, row.IsRead)
		require.NotNil(t, row.ReadAt)
		readAts[row.ID] = *row.ReadAt
	}

	again, err := svc.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, again)

	// read_at set by the first call is untouched by the second.
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&rows).Error)
	for _, row := range rows {
		require.True(t, readAts[row.ID].Equal(*row.ReadAt))
	}
}

func TestStatsForUserConsistency(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	notifications := []models.Notification{
		createTestNotification(t, db, "General note", models.TypeGeneral, base),
		createTestNotification(t, db, "Announcement", models.TypeAnnouncement, base.Add(1*time.Hour)),
		createTestNotification(t, db, "Homework", models.TypeAssignment, base.Add(2*time.Hour)),
		createTestNotification(t, db, "Sports day", models.TypeEvent, base.Add(3*time.Hour)),
		createTestNotification(t, db, "Tuition", models.TypePayment, base.Add(4*time.Hour)),
	}
	for _, n := range notifications {
		_, err := svc.AssignToUsers(ctx, AssignInput{NotificationID: n.ID, UserIDs: []string{user.ID}})
		require.NoError(t, err)
	}

	_, err := svc.MarkRead(ctx, user.ID, MarkReadInput{
		NotificationIDs: []string{notifications[0].ID, notifications[1].ID},
	})
	require.NoError(t, err)

	stats, err := svc.StatsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, stats.TotalNotifications)
	require.EqualValues(t, 3, stats.UnreadCount)
	require.EqualValues(t, 2, stats.ReadCount)
	require.Equal(t, stats.TotalNotifications, stats.UnreadCount+stats.ReadCount)

	var unreadByTypeSum int64
	for _, count := range stats.UnreadByType {
		unreadByTypeSum += count
	}
	require.EqualValues(t, 3, unreadByTypeSum)
	require.NotContains(t, stats.UnreadByType, models.TypeGeneral)
	require.NotContains(t, stats.UnreadByType, models.TypeAnnouncement)

	// Latest unread is the most recently created unread notification.
	require.NotNil(t, stats.LatestUnread)
	require.Equal(t, notifications[4].ID, stats.LatestUnread.NotificationID)
	require.NotNil(t, stats.LatestUnread.Notification)
	require.Equal(t, "Tuition", stats.LatestUnread.Notification.Title)
}

func TestStatsForUserEmpty(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)

	stats, err := svc.StatsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.TotalNotifications)
	require.EqualValues(t, 0, stats.UnreadCount)
	require.EqualValues(t, 0, stats.ReadCount)
	require.Empty(t, stats.UnreadByType)
	require.Nil(t, stats.LatestUnread)
}

func TestListForUserFeed(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	oldest := createTestNotification(t, db, "Oldest", models.TypeGeneral, base)
	middle := createTestNotification(t, db, "Middle", models.TypeAssignment, base.Add(time.Hour))
	newest := createTestNotification(t, db, "Newest", models.TypeGeneral, base.Add(2*time.Hour))

	for _, n := range []models.Notification{oldest, middle, newest} {
		_, err := svc.AssignToUsers(ctx, AssignInput{NotificationID: n.ID, UserIDs: []string{user.ID}})
		require.NoError(t, err)
	}
	_, err := svc.MarkRead(ctx, user.ID, MarkReadInput{NotificationIDs: []string{newest.ID}})
	require.NoError(t, err)

	rows, total, err := svc.ListForUser(ctx, ListFeedInput{UserID: user.ID})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, rows, 3)
	require.Equal(t, newest.ID, rows[0].NotificationID)
	require.Equal(t, middle.ID, rows[1].NotificationID)
	require.Equal(t, oldest.ID, rows[2].NotificationID)
	require.NotNil(t, rows[0].Notification)

	unread, total, err := svc.ListForUser(ctx, ListFeedInput{UserID: user.ID, UnreadOnly: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, unread, 2)

	assignments, total, err := svc.ListForUser(ctx, ListFeedInput{UserID: user.ID, Type: "assignment"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, assignments, 1)
	require.Equal(t, middle.ID, assignments[0].NotificationID)

	paged, total, err := svc.ListForUser(ctx, ListFeedInput{UserID: user.ID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, paged, 1)
	require.Equal(t, oldest.ID, paged[0].NotificationID)
}

func TestRecipients(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", models.RoleStudent)
	budi := createTestUser(t, db, "Budi", models.RoleStudent)
	notification := createTestNotification(t, db, "Library notice", models.TypeGeneral, time.Now().UTC())

	_, err := svc.AssignToUsers(ctx, AssignInput{
		NotificationID: notification.ID,
		UserIDs:        []string{alice.ID, budi.ID},
	})
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, alice.ID, MarkReadInput{NotificationIDs: []string{notification.ID}})
	require.NoError(t, err)

	all, err := svc.Recipients(ctx, notification.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	names := map[string]bool{}
	for _, recipient := range all {
		names[recipient.UserName] = true
	}
	require.True(t, names["Alice"])
	require.True(t, names["Budi"])

	read := true
	readOnly, err := svc.Recipients(ctx, notification.ID, &read)
	require.NoError(t, err)
	require.Len(t, readOnly, 1)
	require.Equal(t, "Alice", readOnly[0].UserName)
	require.NotNil(t, readOnly[0].ReadAt)

	unread := false
	unreadOnly, err := svc.Recipients(ctx, notification.ID, &unread)
	require.NoError(t, err)
	require.Len(t, unreadOnly, 1)
	require.Equal(t, "Budi", unreadOnly[0].UserName)
}

func TestRecipientsUnknownNotification(t *testing.T) {
	_, svc := newFanoutFixture(t)

	_, err := svc.Recipients(context.Background(), "ghost", nil)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoveAssignment(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Alice", models.RoleStudent)
	notification := createTestNotification(t, db, "Removable", models.TypeGeneral, time.Now().UTC())

	_, err := svc.AssignToUsers(ctx, AssignInput{NotificationID: notification.ID, UserIDs: []string{user.ID}})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, user.ID, notification.ID))
	require.EqualValues(t, 0, countPairs(t, db, user.ID, notification.ID))

	require.ErrorIs(t, svc.Remove(ctx, user.ID, notification.ID), apperrors.ErrNotFound)
}

func TestRemoveAllForUser(t *testing.T) {
	db, svc := newFanoutFixture(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", models.RoleStudent)
	budi := createTestUser(t, db, "Budi", models.RoleStudent)
	n1 := createTestNotification(t, db, "One", models.TypeGeneral, time.Now().UTC())
	n2 := createTestNotification(t, db, "Two", models.TypeGeneral, time.Now().UTC())

	_, err := svc.BulkAssign(ctx, BulkAssignInput{
		NotificationIDs: []string{n1.ID, n2.ID},
		UserIDs:         []string{alice.ID, budi.ID},
	})
	require.NoError(t, err)

	removed, err := svc.RemoveAllForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.UserNotification{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
	require.EqualValues(t, 1, countPairs(t, db, budi.ID, n1.ID))
}
