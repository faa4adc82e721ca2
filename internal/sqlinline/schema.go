package sqlinline

// QSchema creates the ledger tables. Every statement is idempotent.
//
// Amounts are numeric(78,0): the full unsigned 256-bit token domain.
const QSchema = `--sql 88c0c2ad-01f6-49a8-9ba9-2159dd8a2d28
create table if not exists campaign_counter (
  singleton boolean primary key default true check (singleton),
  last_id bigint not null
);
insert into campaign_counter(singleton, last_id) values (true, 0) on conflict do nothing;

create table if not exists campaigns (
  id bigint primary key,
  creator text not null,
  beneficiary text not null,
  title text not null,
  description text not null default '',
  image_ref text not null default '',
  target_amount numeric(78,0) not null check (target_amount > 0),
  raised_amount numeric(78,0) not null default 0 check (raised_amount >= 0),
  refunded_amount numeric(78,0) not null default 0 check (refunded_amount >= 0),
  disbursed_amount numeric(78,0) not null default 0 check (disbursed_amount >= 0),
  deadline timestamptz not null,
  donor_count bigint not null default 0,
  donation_count bigint not null default 0,
  goal_reached boolean not null default false,
  active boolean not null default true,
  disbursed boolean not null default false,
  created_at timestamptz not null,
  ended_at timestamptz,
  disbursed_at timestamptz,
  constraint campaigns_disbursed_inactive check (not disbursed or not active),
  constraint campaigns_goal_reached check (goal_reached = (raised_amount >= target_amount))
);

create table if not exists donations (
  id uuid primary key,
  seq bigserial not null,
  campaign_id bigint not null references campaigns(id),
  donor text not null,
  amount numeric(78,0) not null check (amount > 0),
  tx_ref text not null default '',
  created_at timestamptz not null
);
create index if not exists donations_campaign_seq_idx on donations(campaign_id, seq);

create table if not exists contributions (
  campaign_id bigint not null references campaigns(id),
  donor text not null,
  total numeric(78,0) not null check (total > 0),
  refunded boolean not null default false,
  refunded_at timestamptz,
  primary key (campaign_id, donor)
);

create table if not exists reconciliations (
  id uuid primary key,
  campaign_id bigint not null,
  kind text not null,
  party text not null,
  amount numeric(78,0) not null,
  tx_ref text not null default '',
  cause text not null default '',
  created_at timestamptz not null,
  resolved_at timestamptz,
  note text not null default ''
);
create index if not exists reconciliations_open_idx on reconciliations(campaign_id) where resolved_at is null;

create table if not exists ledger_events (
  id uuid primary key,
  kind text not null,
  campaign_id bigint not null,
  payload jsonb not null,
  occurred_at timestamptz not null
);
create index if not exists ledger_events_campaign_idx on ledger_events(campaign_id, occurred_at);
`
