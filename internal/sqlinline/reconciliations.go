package sqlinline

const QInsertReconciliation = `--sql d05a9742-8217-4479-8c16-864e55853211
insert into reconciliations(id, campaign_id, kind, party, amount, tx_ref, cause, created_at)
values ($1::uuid, $2::bigint, $3::text, $4::text, $5::numeric, $6::text, $7::text, $8::timestamptz);
`

const QHasOpenReconciliation = `--sql c83023f3-5e51-4740-ad9d-a96fadf0c1c2
select exists(
  select 1 from reconciliations
  where campaign_id = $1::bigint and resolved_at is null
);
`

const QListReconciliations = `--sql 44af13d0-1e29-4109-90f4-ab7c48553f1d
select id::text, campaign_id, kind, party, amount::text, tx_ref, cause, created_at, resolved_at, note
from reconciliations
where $1::boolean or resolved_at is null
order by created_at, id;
`

const QResolveReconciliation = `--sql aa4f662b-ccb0-419c-be05-2004a2f647af
update reconciliations
set resolved_at = $3::timestamptz,
    note = $2::text
where id = $1::uuid and resolved_at is null;
`
