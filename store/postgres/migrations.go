package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the billing store.
var Migrations = migrate.NewGroup("billing")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_billing_catalog",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_customers (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    phone            TEXT NOT NULL DEFAULT '',
    address          TEXT NOT NULL DEFAULT '',
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    auto_deliver     BOOLEAN NOT NULL DEFAULT FALSE,
    credit_balance   BIGINT NOT NULL DEFAULT 0,
    advance_balance  BIGINT NOT NULL DEFAULT 0,
    balance_currency TEXT NOT NULL DEFAULT 'inr',
    billing          JSONB,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_billing_customers_schedulable ON billing_customers (active, auto_deliver);

CREATE TABLE IF NOT EXISTS billing_products (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    unit       TEXT NOT NULL DEFAULT '',
    base_price BIGINT NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL DEFAULT 'inr',
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS billing_subscriptions (
    id           TEXT PRIMARY KEY,
    customer_id  TEXT NOT NULL REFERENCES billing_customers (id),
    product_id   TEXT NOT NULL REFERENCES billing_products (id),
    quantity     BIGINT NOT NULL DEFAULT 0,
    custom_price BIGINT,
    currency     TEXT NOT NULL DEFAULT '',
    pattern      JSONB NOT NULL DEFAULT '{"kind":"daily"}',
    start_date   TIMESTAMPTZ NOT NULL,
    active       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_billing_subscriptions_customer ON billing_subscriptions (customer_id, active);

CREATE TABLE IF NOT EXISTS billing_vacations (
    id          TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL REFERENCES billing_customers (id),
    start_date  TIMESTAMPTZ NOT NULL,
    end_date    TIMESTAMPTZ NOT NULL,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    reason      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_billing_vacations_customer ON billing_vacations (customer_id, start_date, end_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS billing_vacations;
DROP TABLE IF EXISTS billing_subscriptions;
DROP TABLE IF EXISTS billing_products;
DROP TABLE IF EXISTS billing_customers;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billing_deliveries",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_deliveries (
    id            TEXT PRIMARY KEY,
    customer_id   TEXT NOT NULL REFERENCES billing_customers (id),
    delivery_date TIMESTAMPTZ NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    items         JSONB NOT NULL DEFAULT '[]',
    notes         TEXT NOT NULL DEFAULT '',
    delivered_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_deliveries_customer_date ON billing_deliveries (customer_id, delivery_date);
CREATE INDEX IF NOT EXISTS idx_billing_deliveries_status ON billing_deliveries (customer_id, status, delivery_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billing_deliveries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billing_accounts",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_invoices (
    id              TEXT PRIMARY KEY,
    number          TEXT NOT NULL DEFAULT '',
    customer_id     TEXT NOT NULL REFERENCES billing_customers (id),
    period_start    TIMESTAMPTZ NOT NULL,
    period_end      TIMESTAMPTZ NOT NULL,
    line_items      JSONB NOT NULL DEFAULT '[]',
    total_amount    BIGINT NOT NULL DEFAULT 0,
    tax_amount      BIGINT NOT NULL DEFAULT 0,
    discount_amount BIGINT NOT NULL DEFAULT 0,
    final_amount    BIGINT NOT NULL DEFAULT 0,
    paid_amount     BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT 'inr',
    payment_status  TEXT NOT NULL DEFAULT 'pending',
    due_date        TIMESTAMPTZ NOT NULL,
    payment_date    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (final_amount = total_amount + tax_amount - discount_amount),
    CHECK (paid_amount >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_invoices_period ON billing_invoices (customer_id, period_start, period_end);
CREATE INDEX IF NOT EXISTS idx_billing_invoices_status ON billing_invoices (payment_status, due_date);

CREATE TABLE IF NOT EXISTS billing_ledger_entries (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL REFERENCES billing_customers (id),
    seq             BIGINT NOT NULL,
    date            TIMESTAMPTZ NOT NULL,
    type            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    debit           BIGINT NOT NULL DEFAULT 0,
    credit          BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT 'inr',
    running_balance BIGINT NOT NULL,
    reference_id    TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (debit >= 0 AND credit >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_ledger_customer_seq ON billing_ledger_entries (customer_id, seq);

CREATE TABLE IF NOT EXISTS billing_payments (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL REFERENCES billing_customers (id),
    invoice_id      TEXT NOT NULL DEFAULT '',
    amount          BIGINT NOT NULL,
    applied_amount  BIGINT NOT NULL DEFAULT 0,
    excess_amount   BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT 'inr',
    mode            TEXT NOT NULL,
    date            TIMESTAMPTZ NOT NULL,
    notes           TEXT NOT NULL DEFAULT '',
    ledger_entry_id TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (applied_amount + excess_amount = amount)
);

CREATE INDEX IF NOT EXISTS idx_billing_payments_customer ON billing_payments (customer_id, date);
CREATE INDEX IF NOT EXISTS idx_billing_payments_invoice ON billing_payments (invoice_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS billing_payments;
DROP TABLE IF EXISTS billing_ledger_entries;
DROP TABLE IF EXISTS billing_invoices;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billing_primitives",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, primitivesSQL)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP FUNCTION IF EXISTS billing_apply_payment(JSONB, JSONB);
DROP FUNCTION IF EXISTS billing_post_invoice(JSONB, JSONB);
DROP FUNCTION IF EXISTS billing_append_entry(JSONB);
`)
				return err
			},
		},
	)
}

// primitivesSQL defines the composite writes. Each runs inside the single
// statement that calls it, so it commits or rolls back as a whole. The
// customer row lock in billing_append_entry serializes appends per
// customer. Errors raised from the ledger step carry the
// billing_ledger_append prefix.
const primitivesSQL = `
CREATE OR REPLACE FUNCTION billing_append_entry(p_entry JSONB) RETURNS BIGINT AS $$
DECLARE
    v_customer TEXT   := p_entry->>'customer_id';
    v_debit    BIGINT := COALESCE((p_entry->>'debit')::BIGINT, 0);
    v_credit   BIGINT := COALESCE((p_entry->>'credit')::BIGINT, 0);
    v_seq      BIGINT;
    v_balance  BIGINT;
BEGIN
    PERFORM 1 FROM billing_customers WHERE id = v_customer FOR UPDATE;
    IF NOT FOUND THEN
        RAISE EXCEPTION 'billing_customer_not_found: %', v_customer;
    END IF;

    SELECT seq, running_balance INTO v_seq, v_balance
    FROM billing_ledger_entries
    WHERE customer_id = v_customer
    ORDER BY seq DESC
    LIMIT 1;

    v_seq     := COALESCE(v_seq, 0) + 1;
    v_balance := COALESCE(v_balance, 0) + v_debit - v_credit;

    INSERT INTO billing_ledger_entries
        (id, customer_id, seq, date, type, description, debit, credit, currency, running_balance, reference_id, created_at)
    VALUES (
        p_entry->>'id',
        v_customer,
        v_seq,
        (p_entry->>'date')::TIMESTAMPTZ,
        p_entry->>'type',
        COALESCE(p_entry->>'description', ''),
        v_debit,
        v_credit,
        p_entry->>'currency',
        v_balance,
        COALESCE(p_entry->>'reference_id', ''),
        COALESCE((p_entry->>'created_at')::TIMESTAMPTZ, NOW())
    );

    UPDATE billing_customers
    SET credit_balance   = v_balance,
        advance_balance  = GREATEST(-v_balance, 0),
        balance_currency = p_entry->>'currency',
        updated_at       = NOW()
    WHERE id = v_customer;

    RETURN v_seq;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION billing_post_invoice(p_invoice JSONB, p_debit JSONB) RETURNS BIGINT AS $$
DECLARE
    v_seq      BIGINT      := 0;
    v_customer TEXT        := p_invoice->>'customer_id';
    v_start    TIMESTAMPTZ := (p_invoice->>'period_start')::TIMESTAMPTZ;
    v_end      TIMESTAMPTZ := (p_invoice->>'period_end')::TIMESTAMPTZ;
    v_other    TEXT;
BEGIN
    PERFORM 1 FROM billing_customers WHERE id = v_customer FOR UPDATE;
    IF NOT FOUND THEN
        RAISE EXCEPTION 'billing_customer_not_found: %', v_customer;
    END IF;

    SELECT number INTO v_other
    FROM billing_invoices
    WHERE customer_id = v_customer
      AND period_start <= v_end
      AND period_end >= v_start
    LIMIT 1;
    IF FOUND THEN
        RAISE EXCEPTION 'billing_invoice_overlap: %', v_other;
    END IF;

    INSERT INTO billing_invoices
    SELECT * FROM jsonb_populate_record(NULL::billing_invoices, p_invoice);

    IF p_debit IS NOT NULL THEN
        BEGIN
            v_seq := billing_append_entry(p_debit);
        EXCEPTION WHEN OTHERS THEN
            RAISE EXCEPTION 'billing_ledger_append: %', SQLERRM;
        END;
    END IF;

    RETURN v_seq;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION billing_apply_payment(p_payment JSONB, p_credit JSONB) RETURNS BIGINT AS $$
DECLARE
    v_invoice  TEXT        := NULLIF(p_payment->>'invoice_id', '');
    v_customer TEXT        := p_payment->>'customer_id';
    v_amount   BIGINT      := (p_payment->>'amount')::BIGINT;
    v_date     TIMESTAMPTZ := (p_payment->>'date')::TIMESTAMPTZ;
    v_owner    TEXT;
    v_final    BIGINT;
    v_paid     BIGINT;
    v_applied  BIGINT      := 0;
BEGIN
    IF v_invoice IS NOT NULL THEN
        SELECT customer_id, final_amount, paid_amount INTO v_owner, v_final, v_paid
        FROM billing_invoices
        WHERE id = v_invoice
        FOR UPDATE;
        IF NOT FOUND THEN
            RAISE EXCEPTION 'billing_invoice_not_found: %', v_invoice;
        END IF;
        IF v_owner <> v_customer THEN
            RAISE EXCEPTION 'billing_invoice_customer: %', v_invoice;
        END IF;

        v_applied := LEAST(v_amount, GREATEST(v_final - v_paid, 0));
        v_paid    := v_paid + v_applied;

        UPDATE billing_invoices
        SET paid_amount    = v_paid,
            payment_status = CASE
                WHEN v_paid >= v_final THEN 'paid'
                WHEN v_paid = 0 THEN 'pending'
                ELSE 'partial'
            END,
            payment_date   = CASE
                WHEN v_paid >= v_final THEN COALESCE(payment_date, v_date)
                ELSE payment_date
            END,
            updated_at     = NOW()
        WHERE id = v_invoice;
    END IF;

    BEGIN
        PERFORM billing_append_entry(p_credit);
    EXCEPTION WHEN OTHERS THEN
        RAISE EXCEPTION 'billing_ledger_append: %', SQLERRM;
    END;

    INSERT INTO billing_payments
        (id, customer_id, invoice_id, amount, applied_amount, excess_amount, currency, mode, date, notes, ledger_entry_id, created_at, updated_at)
    VALUES (
        p_payment->>'id',
        v_customer,
        COALESCE(v_invoice, ''),
        v_amount,
        v_applied,
        v_amount - v_applied,
        p_payment->>'currency',
        p_payment->>'mode',
        v_date,
        COALESCE(p_payment->>'notes', ''),
        p_credit->>'id',
        COALESCE((p_payment->>'created_at')::TIMESTAMPTZ, NOW()),
        NOW()
    );

    RETURN v_applied;
END;
$$ LANGUAGE plpgsql;
`
